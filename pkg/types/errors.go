package types

import "fmt"

// ErrImagePull indicates an error occurred while pulling the memscrimper
// Docker image.
type ErrImagePull struct {
	Image string
	Err   error
}

func (e ErrImagePull) Error() string {
	return fmt.Sprintf("could not pull docker image '%s': %s", e.Image, e.Err)
}

func (e ErrImagePull) Unwrap() error {
	return e.Err
}
