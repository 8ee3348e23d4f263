package internal

import "time"

const (
	PlatformGoogle = "google"
	PlatformCalDAV = "caldav"
)

// expirySkew refreshes tokens slightly before they actually expire.
const expirySkew = time.Minute

// Account is a linked external calendar. All confirmed events are written to
// every linked account.
type Account struct {
	Platform     string    `json:"platform"`
	Name         string    `json:"name"`
	CalendarID   string    `json:"calendarId"`
	Endpoint     string    `json:"endpoint,omitempty"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	Expiry       time.Time `json:"expiry,omitempty"`
	LastError    string    `json:"lastError,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (a Account) ID() string {
	return a.Platform + "/" + a.Name
}

func (a Account) String() string {
	return a.ID()
}

// Expired reports whether the access token must be refreshed before use.
// Accounts without an expiry never expire.
func (a Account) Expired(now time.Time) bool {
	if a.Expiry.IsZero() {
		return false
	}
	return !now.Add(expirySkew).Before(a.Expiry)
}
