package object

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol is returned when a daemon response does not have the
	// expected shape.
	ErrProtocol = errors.New("object: protocol error")

	// ErrCidMismatch is returned when bytes or an acknowledgement from the
	// daemon do not match the CID they were requested or computed under.
	ErrCidMismatch = fmt.Errorf("%w: cid mismatch", ErrProtocol)
)

func protocolErr(command string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrProtocol, command, err)
}
