// Package telegram verifies Telegram Mini App launch parameters.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"vpn-checkout/internal/domain"
	"vpn-checkout/internal/domain/model"
)

const webAppDataKey = "WebAppData"

// ValidateInitData checks the hash field of a Mini App initData query string
// against the bot token. The data-check string is every other field as
// key=value, sorted by key and joined with newlines.
func ValidateInitData(botToken, initData string) error {
	if botToken == "" {
		return domain.ErrNotConfigured
	}
	values, err := url.ParseQuery(initData)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInitData, err)
	}
	got := values.Get("hash")
	if got == "" {
		return fmt.Errorf("%w: hash missing", domain.ErrInvalidInitData)
	}
	values.Del("hash")

	want := Sign(botToken, dataCheckString(values))
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return domain.ErrInvalidInitData
	}
	return nil
}

// Sign returns the hex HMAC of a data-check string under the key derived from botToken.
func Sign(botToken, dcs string) string {
	secret := hmac.New(sha256.New, []byte(webAppDataKey))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(dcs))
	return hex.EncodeToString(mac.Sum(nil))
}

func dataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		// repeated keys keep their order of appearance
		for _, v := range values[k] {
			lines = append(lines, k+"="+v)
		}
	}
	return strings.Join(lines, "\n")
}

// SignValues builds a signed initData string; used by tests and local tooling.
func SignValues(botToken string, values url.Values) string {
	values.Del("hash")
	values.Set("hash", Sign(botToken, dataCheckString(values)))
	return values.Encode()
}

type webAppUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ParseUser extracts the user object from initData. It does not verify the hash.
func ParseUser(initData string) (model.Identity, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: %v", domain.ErrInvalidInitData, err)
	}
	raw := values.Get("user")
	if raw == "" {
		return model.Identity{}, fmt.Errorf("%w: user missing", domain.ErrInvalidInitData)
	}
	var u webAppUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return model.Identity{}, fmt.Errorf("%w: user: %v", domain.ErrInvalidInitData, err)
	}
	if u.ID == 0 {
		return model.Identity{}, fmt.Errorf("%w: user id missing", domain.ErrInvalidInitData)
	}
	return model.Identity{
		UserID:    strconv.FormatInt(u.ID, 10),
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Verified:  true,
	}, nil
}

// AuthDate returns the auth_date field, or the zero time when absent.
func AuthDate(initData string) time.Time {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
