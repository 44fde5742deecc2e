package jobs

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/saofleet/reconciler/internal/status"
	"github.com/saofleet/reconciler/internal/table"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType string
	}{
		{"missing column", &InputError{Err: fmt.Errorf("services: %w", table.ErrMissingColumn)}, FailureIO},
		{"wrapped input error", fmt.Errorf("job: %w", &InputError{Err: errors.New("x")}), FailureIO},
		{"artifact write", &ArtifactWriteError{Err: errors.New("disk full")}, FailureArtifactWrite},
		{"typed failure", status.Failure{Type: "QueueError", Message: "down"}, "QueueError"},
		{"innermost error unexported", fmt.Errorf("open: %w", &fs.PathError{Op: "open", Path: "x", Err: fs.ErrNotExist}), "Error"},
		{"plain error", errors.New("boom"), "Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.err.Error(), got.Message)
		})
	}
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "PathError", typeName(&fs.PathError{Op: "open", Path: "x"}))
	assert.Equal(t, "Error", typeName(errors.New("x")))
}
