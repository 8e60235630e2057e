package main

import (
	"github.com/Bren2010/antani/ballot"
	"github.com/Bren2010/antani/log"
)

// watcher is a goroutine that receives notifications from the ballot, logs
// them, and keeps the ballot metrics up to date.
func watcher(b *ballot.Ballot) {
	for ev := range b.Events() {
		observe(b, ev)
	}
}

// observe handles a single event. Events may be dropped when the watcher
// falls behind, so the vote gauge is always read back from the ballot.
func observe(b *ballot.Ballot, ev ballot.Event) {
	ballotVotes.Set(float64(b.Votes()))

	switch ev.Type {
	case ballot.EventReady:
		log.Infow("ballot ready", "votes", b.Votes(), "finalized", b.Finalized())
	case ballot.EventError:
		log.Errorw(ev.Err, "ballot failed")
	case ballot.EventVote:
		log.Debugw("vote accepted", "index", ev.Vote.Index, "balance", ev.Vote.Balance)
	case ballot.EventFinalized:
		log.Infow("ballot finalized", "votes", b.Votes())
	}
}
