package likes

// Set is the list of user ids who liked a post, comment or reply.
// It behaves as a set: a user id appears at most once.
type Set []string

func Has(s Set, userId string) bool {
	for _, id := range s {
		if id == userId {
			return true
		}
	}
	return false
}

// Toggle adds userId to the set if absent and removes it if present.
// The same rule runs on the server and in optimistic client updates,
// so both sides stay in agreement.
func Toggle(s Set, userId string) (Set, bool) {
	if !Has(s, userId) {
		return append(s, userId), true
	}

	res := make(Set, 0, len(s)-1)
	for _, id := range s {
		if id != userId {
			res = append(res, id)
		}
	}
	return res, false
}

func Count(s Set) int {
	return len(s)
}
