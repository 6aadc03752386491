package model

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"time"
)

// Identity is who a checkout runs for: a Telegram account verified through
// the mini-app handshake, or a temporary id for anonymous checkout.
type Identity struct {
	UserID    string `json:"telegramId"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Verified  bool   `json:"verified"`
	Temporary bool   `json:"temporary"`
}

const tempAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

var tempIDPattern = regexp.MustCompile(`^temp_[0-9]{10,16}_[0-9a-z]{7}$`)

// NewTemporaryIdentity returns temp_<unix-ms>_<7 base36 chars>.
func NewTemporaryIdentity(now time.Time) Identity {
	suffix := make([]byte, 7)
	max := big.NewInt(int64(len(tempAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			n = big.NewInt(now.UnixNano() % int64(len(tempAlphabet)))
		}
		suffix[i] = tempAlphabet[n.Int64()]
	}
	return Identity{
		UserID:    fmt.Sprintf("temp_%d_%s", now.UnixMilli(), suffix),
		Temporary: true,
	}
}

func IsTemporaryID(id string) bool { return tempIDPattern.MatchString(id) }

// ChatID returns the Telegram chat id for verified numeric identities.
func (i Identity) ChatID() (int64, bool) {
	if i.Temporary {
		return 0, false
	}
	id, err := strconv.ParseInt(i.UserID, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
