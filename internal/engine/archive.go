package engine

import "github.com/justestif/go-spotify-group-queue/internal/db"

// shouldArchive decides whether a removed track is copied into the
// archive collection, given all reactions on the track and the
// required-member set (playlist members excluding the adder).
func shouldArchive(threshold db.ArchiveThreshold, reactions []db.Reaction, required []string) bool {
	switch threshold {
	case db.ArchiveNoDislikes:
		for _, re := range reactions {
			if re.Value == db.ReactionDislike {
				return false
			}
		}
		return true

	case db.ArchiveAtLeastOneLike:
		for _, re := range reactions {
			if re.Value == db.ReactionLike {
				return true
			}
		}
		return false

	case db.ArchiveUniversallyLiked:
		likes := make(map[string]bool, len(reactions))
		for _, re := range reactions {
			if re.Value == db.ReactionLike {
				likes[re.UserID] = true
			}
		}
		for _, userID := range required {
			if !likes[userID] {
				return false
			}
		}
		return len(required) > 0

	default:
		// ArchiveNone and unknown thresholds never archive.
		return false
	}
}
