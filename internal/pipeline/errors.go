package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrCodec marks failures inside the image codec: a corrupt or
	// unsupported source, or a transform or encode the codec could not do.
	ErrCodec = errors.New("codec failure")

	ErrUnsupportedFormat     = fmt.Errorf("%w: unsupported output format", ErrCodec)
	ErrUnsupportedSourceType = errors.New("unsupported source kind")
)

// Stage names one step of the render pipeline.
type Stage string

const (
	StageValidate Stage = "validate"
	StageDecode   Stage = "decode"
	StageResolve  Stage = "resolve"
	StageCrop     Stage = "crop"
	StageScale    Stage = "scale"
	StageRotate   Stage = "rotate"
	StageRecolor  Stage = "recolor"
	StageSharpen  Stage = "sharpen"
	StageEncode   Stage = "encode"
)

// StageError tags a render failure with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage recorded in err, if any.
func FailedStage(err error) (Stage, bool) {
	var serr *StageError
	if errors.As(err, &serr) {
		return serr.Stage, true
	}
	return "", false
}

func codecError(err error) error {
	if err == nil || errors.Is(err, ErrCodec) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCodec, err)
}
