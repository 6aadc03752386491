//go:build !integration

package telegram

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"vpn-checkout/internal/domain"
)

const testToken = "123456:TEST-token"

func fixture() url.Values {
	v := url.Values{}
	v.Set("auth_date", "1700000000")
	v.Set("query_id", "AAF-q")
	v.Set("user", `{"id":424242,"first_name":"Ivan","last_name":"P","username":"ivanp"}`)
	return v
}

// fixtureHash is the signature of fixture() under testToken, computed once
// outside this package.
const fixtureHash = "c3705d6531c2fde0bb095cfdce649ef07783b3cba1762f1c974fe4c404384129"

func TestSignKnownFixture(t *testing.T) {
	dcs := "auth_date=1700000000\nquery_id=AAF-q\nuser=" + `{"id":424242,"first_name":"Ivan","last_name":"P","username":"ivanp"}`
	if got := dataCheckString(fixture()); got != dcs {
		t.Fatalf("unexpected data-check string:\n%s", got)
	}
	if got := Sign(testToken, dcs); got != fixtureHash {
		t.Errorf("expected %s, got %s", fixtureHash, got)
	}

	raw := fixture()
	raw.Set("hash", fixtureHash)
	if err := ValidateInitData(testToken, raw.Encode()); err != nil {
		t.Errorf("expected the known signature to validate, got %v", err)
	}
}

func TestRepeatedKeysAreAllSigned(t *testing.T) {
	v, _ := url.ParseQuery("b=3&a=1&a=2")
	if got := dataCheckString(v); got != "a=1\na=2\nb=3" {
		t.Fatalf("unexpected data-check string %q", got)
	}

	const hash = "b60fdb45a56fb0d18656da2699cc449a77d239c2d2d808d55b82843985344aca"
	if err := ValidateInitData(testToken, "a=1&b=3&a=2&hash="+hash); err != nil {
		t.Errorf("expected valid, got %v", err)
	}
	if err := ValidateInitData(testToken, "a=2&b=3&a=1&hash="+hash); !errors.Is(err, domain.ErrInvalidInitData) {
		t.Errorf("reordered repeated values must not validate, got %v", err)
	}
	if err := ValidateInitData(testToken, "a=1&b=3&hash="+hash); !errors.Is(err, domain.ErrInvalidInitData) {
		t.Errorf("dropped repeated value must not validate, got %v", err)
	}
}

func TestValidateInitData(t *testing.T) {
	signed := SignValues(testToken, fixture())

	t.Run("should accept a correctly signed payload", func(t *testing.T) {
		if err := ValidateInitData(testToken, signed); err != nil {
			t.Fatalf("expected valid, got %v", err)
		}
	})

	t.Run("should reject a single changed character in any field", func(t *testing.T) {
		for key, val := range map[string]string{
			"auth_date": "1700000001",
			"query_id":  "AAF-r",
			"user":      `{"id":424243,"first_name":"Ivan","last_name":"P","username":"ivanp"}`,
		} {
			v, _ := url.ParseQuery(signed)
			v.Set(key, val)
			if err := ValidateInitData(testToken, v.Encode()); !errors.Is(err, domain.ErrInvalidInitData) {
				t.Errorf("%s: expected ErrInvalidInitData, got %v", key, err)
			}
		}
	})

	t.Run("should reject a changed hash", func(t *testing.T) {
		v, _ := url.ParseQuery(signed)
		v.Set("hash", "d"+fixtureHash[1:])
		if err := ValidateInitData(testToken, v.Encode()); !errors.Is(err, domain.ErrInvalidInitData) {
			t.Errorf("expected ErrInvalidInitData, got %v", err)
		}
	})

	t.Run("should reject a different bot token", func(t *testing.T) {
		if err := ValidateInitData("999:other", signed); !errors.Is(err, domain.ErrInvalidInitData) {
			t.Errorf("expected ErrInvalidInitData, got %v", err)
		}
	})

	t.Run("should reject a missing hash", func(t *testing.T) {
		if err := ValidateInitData(testToken, fixture().Encode()); !errors.Is(err, domain.ErrInvalidInitData) {
			t.Errorf("expected ErrInvalidInitData, got %v", err)
		}
	})

	t.Run("should report an unconfigured token", func(t *testing.T) {
		if err := ValidateInitData("", signed); !errors.Is(err, domain.ErrNotConfigured) {
			t.Errorf("expected ErrNotConfigured, got %v", err)
		}
	})
}

func TestParseUser(t *testing.T) {
	id, err := ParseUser(SignValues(testToken, fixture()))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if id.UserID != "424242" || id.Username != "ivanp" || !id.Verified || id.Temporary {
		t.Errorf("unexpected identity %+v", id)
	}

	if _, err := ParseUser("auth_date=1"); !errors.Is(err, domain.ErrInvalidInitData) {
		t.Errorf("expected ErrInvalidInitData for missing user, got %v", err)
	}
}

func TestAuthDate(t *testing.T) {
	if got := AuthDate(fixture().Encode()); !got.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected auth date %v", got)
	}
	if !AuthDate("x=1").IsZero() {
		t.Error("expected zero time without auth_date")
	}
}
