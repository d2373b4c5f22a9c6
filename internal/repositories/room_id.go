package repositories

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
)

const (
	roomIDMin         = 10000000
	roomIDSpan        = 90000000
	roomIDMaxAttempts = 50
)

var ErrRoomIDExhausted = errors.New("could not allocate a unique room id")

var roomIDPattern = regexp.MustCompile(`^[0-9]{8}$`)

// ValidRoomID reports whether id has the fixed 8-digit numeric room id format.
func ValidRoomID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// RoomIDGenerator allocates random 8-digit room ids that are not yet taken.
type RoomIDGenerator struct {
	next        func() int
	maxAttempts int
}

// NewRoomIDGenerator builds a generator drawing from [10000000, 99999999].
func NewRoomIDGenerator() *RoomIDGenerator {
	return &RoomIDGenerator{
		next:        func() int { return roomIDMin + rand.IntN(roomIDSpan) },
		maxAttempts: roomIDMaxAttempts,
	}
}

// Generate draws candidates until exists reports one as free.
func (g *RoomIDGenerator) Generate(ctx context.Context, exists func(context.Context, string) (bool, error)) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		candidate := fmt.Sprintf("%08d", g.next())
		if !ValidRoomID(candidate) {
			continue
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", ErrRoomIDExhausted
}
