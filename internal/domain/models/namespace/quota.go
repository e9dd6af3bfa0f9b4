package namespace

import "time"

// Usage is an owner's ledger row. Limit 0 means unlimited.
// Reserved counts bytes held by uploads that have not been recorded yet;
// they count against the limit but are not part of Used.
type Usage struct {
	OwnerID   string    `json:"owner_id"`
	Used      int64     `json:"used"`
	Reserved  int64     `json:"reserved"`
	Limit     int64     `json:"limit"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Unlimited reports whether the owner has no storage cap
func (u *Usage) Unlimited() bool {
	return u.Limit <= 0
}

// Fits reports whether delta more bytes stay within the limit
func (u *Usage) Fits(delta int64) bool {
	return u.Unlimited() || u.committed()+delta <= u.Limit
}

func (u *Usage) committed() int64 {
	return u.Used + u.Reserved
}

// Remaining returns the bytes left, or -1 when unlimited
func (u *Usage) Remaining() int64 {
	if u.Unlimited() {
		return -1
	}
	if u.committed() >= u.Limit {
		return 0
	}
	return u.Limit - u.committed()
}

// ContentReference is a time-limited retrieval handle for a blob.
type ContentReference struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
