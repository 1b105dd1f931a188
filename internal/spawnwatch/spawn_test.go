package spawnwatch

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStragglers(t *testing.T) {
	cwds := map[int]string{
		100: "/mnt/old/job",
		101: "/mnt/new",
		103: "/mnt/old",
	}
	lookup := func(pid int) (string, error) {
		cwd, ok := cwds[pid]
		if !ok {
			return "", errors.New("exited")
		}
		return cwd, nil
	}
	under := func(p string) bool { return strings.HasPrefix(p, "/mnt/old") }

	spawns := []Spawn{{100, 5}, {101, 6}, {102, 7}, {103, 8}}

	got := Stragglers(spawns, lookup, under)

	assert.Equal(t, []Straggler{
		{Spawn: Spawn{100, 5}, Cwd: "/mnt/old/job"},
		{Spawn: Spawn{103, 8}, Cwd: "/mnt/old"},
	}, got)
}

func TestSortSpawns(t *testing.T) {
	spawns := []Spawn{{PID: 9, Monotonic: 30}, {PID: 3, Monotonic: 10}, {PID: 1, Monotonic: 30}}

	sortSpawns(spawns)

	assert.Equal(t, []Spawn{{3, 10}, {1, 30}, {9, 30}}, spawns)
}
