package gen

import (
	"fmt"

	"github.com/google/uuid"
)

type UUIDGenerator func() uuid.UUID

func UUID() UUIDGenerator {
	return func() uuid.UUID {
		return uuid.Must(uuid.NewV7())
	}
}

func (g UUIDGenerator) Next() uuid.UUID {
	if g == nil {
		return uuid.Nil
	}

	return g()
}

// Sequence returns a generator producing deterministic ids for tests.
func Sequence() UUIDGenerator {
	n := 0
	return func() uuid.UUID {
		n++
		return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
	}
}
