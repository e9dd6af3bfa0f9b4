package badger

// Key layout. Segments are separated by 0x00, which cannot appear in owner
// ids (JWT subjects) or entry ids (UUIDs).
//
//	e\x00<owner>\x00<id>             entry record (JSON)
//	c\x00<owner>\x00<parent>\x00<id> child index, empty parent = root level
//	q\x00<owner>                     ledger row (JSON)
//	l\x00<owner>                     namespace lock counter
const (
	prefixEntry = "e\x00"
	prefixChild = "c\x00"
	prefixQuota = "q\x00"
	prefixLock  = "l\x00"
	sep         = "\x00"
)

func keyEntry(ownerID, id string) []byte {
	return []byte(prefixEntry + ownerID + sep + id)
}

func keyOwnerEntries(ownerID string) []byte {
	return []byte(prefixEntry + ownerID + sep)
}

func parentSegment(parentID *string) string {
	if parentID == nil {
		return ""
	}
	return *parentID
}

func keyChild(ownerID string, parentID *string, id string) []byte {
	return []byte(prefixChild + ownerID + sep + parentSegment(parentID) + sep + id)
}

func keyChildPrefix(ownerID string, parentID *string) []byte {
	return []byte(prefixChild + ownerID + sep + parentSegment(parentID) + sep)
}

func keyQuota(ownerID string) []byte {
	return []byte(prefixQuota + ownerID)
}

func keyLock(ownerID string) []byte {
	return []byte(prefixLock + ownerID)
}
