package sync

import "github.com/quilldb/quilldb/pkg/log"

// Resolve picks the winner between two Change-Set Records describing the
// same table+PK: last-writer-wins by CommittedAt, with a deterministic
// tiebreak on OriginDevice (lexicographically greater device id wins) when
// the timestamps are equal. Callers only call Resolve once they already
// know local and incoming disagree, so every call is a logged conflict.
func Resolve(local, incoming Record) Record {
	var winner, loser Record
	switch {
	case incoming.CommittedAt.After(local.CommittedAt):
		winner, loser = incoming, local
	case incoming.CommittedAt.Before(local.CommittedAt):
		winner, loser = local, incoming
	case incoming.OriginDevice > local.OriginDevice:
		winner, loser = incoming, local
	default:
		winner, loser = local, incoming
	}

	log.WithTable(local.Table).Warn().
		Str("pk", local.PK).
		Str("winner_device", winner.OriginDevice).
		Str("loser_device", loser.OriginDevice).
		Msg("sync conflict resolved by last-writer-wins")
	return winner
}
