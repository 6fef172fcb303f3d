package services

import (
	"context"
	"sync"

	"github.com/usercore/apiserver/types"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []types.AccountEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev types.AccountEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) kinds() []types.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.EventType, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}
