package avail

import (
	"testing"
	"time"

	"github.com/perlin-network/avail/common"
	"github.com/stretchr/testify/assert"
)

func TestKAncestorsInSession(t *testing.T) {
	data := []struct {
		hash    common.RelayHash
		session common.SessionIndex
	}{
		{relayHash(0x32), 3}, // relay parent
		{relayHash(0x31), 3}, // grand parent
		{relayHash(0x30), 3}, // great ...
		{relayHash(0x20), 2},
		{relayHash(0x12), 1},
		{relayHash(0x11), 1},
		{relayHash(0x10), 1},
	}

	const k = 5

	expected := []common.RelayHash{data[1].hash, data[2].hash}

	p := NewProtocol(nil, nil)

	type result struct {
		ancestors []common.RelayHash
		err       error
	}

	done := make(chan result, 1)

	go func() {
		ancestors, err := p.ancestorsInSameSession(data[0].hash, k)
		done <- result{ancestors, err}
	}()

	select {
	case evt := <-p.AncestorsOut:
		assert.Equal(t, data[0].hash, evt.Hash)
		assert.Equal(t, k+1, evt.K)

		reply := make([]common.RelayHash, 0, k+1)
		for _, entry := range data[1 : k+2] {
			reply = append(reply, entry.hash)
		}

		evt.Result <- reply
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for ancestors request")
	}

	// The head's own session anchors the walk.
	select {
	case evt := <-p.SessionIndexOut:
		assert.Equal(t, data[0].hash, evt.Relay)
		evt.Result <- data[0].session
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for session index request")
	}

	// Ancestor i's session is determined via the child of ancestor i+1.
	for i := 2; i <= len(expected)+2; i++ {
		select {
		case evt := <-p.SessionIndexOut:
			assert.Equal(t, data[i].hash, evt.Relay)
			evt.Result <- data[i-1].session
		case <-time.After(testTimeout):
			t.Fatal("timed out waiting for session index request")
		}
	}

	select {
	case res := <-done:
		assert.NoError(t, res.err)
		assert.Equal(t, expected, res.ancestors)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for ancestry resolution")
	}
}

func TestAncestryStopsAtFailedSessionQuery(t *testing.T) {
	head := relayHash(0x32)

	ancestors := []common.RelayHash{relayHash(0x31), relayHash(0xAA)}

	p := NewProtocol(nil, nil)

	done := make(chan []common.RelayHash, 1)

	go func() {
		result, err := p.ancestorsInSameSession(head, 3)
		assert.NoError(t, err)
		done <- result
	}()

	evt := <-p.AncestorsOut
	evt.Result <- ancestors

	first := <-p.SessionIndexOut
	assert.Equal(t, head, first.Relay)
	first.Result <- 7

	// The pretend-genesis has no session index to give; its predecessor is
	// dropped along with it.
	second := <-p.SessionIndexOut
	assert.Equal(t, ancestors[1], second.Relay)
	second.Error <- assert.AnError

	select {
	case result := <-done:
		assert.Empty(t, result)
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for ancestry resolution")
	}
}
