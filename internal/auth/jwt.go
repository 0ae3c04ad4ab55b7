package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role tiers for the admin surface. Ordering matters: admin implies
// operator, operator implies member.
const (
	RoleMember   = "member"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

var roleRank = map[string]int{
	RoleMember:   0,
	RoleOperator: 1,
	RoleAdmin:    2,
}

// Identity is the verified caller: which tenant it acts for, who it is,
// and what tier of operations it may perform.
type Identity struct {
	OrgID   string
	Subject string
	Role    string
}

// AtLeast reports whether the identity's role meets the given tier.
func (id Identity) AtLeast(role string) bool {
	return roleRank[id.Role] >= roleRank[role]
}

type JWT struct {
	secret []byte
}

func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret)}
}

func (j *JWT) Sign(orgID, subject, role string) (string, error) {
	claims := jwt.MapClaims{
		"org":  orgID,
		"sub":  subject,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(7 * 24 * time.Hour).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(j.secret)
}

func (j *JWT) Verify(tokenStr string) (Identity, error) {
	t, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	})
	if err != nil || !t.Valid {
		return Identity{}, errors.New("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid claims")
	}

	org, ok := claims["org"].(string)
	if !ok || org == "" {
		return Identity{}, errors.New("missing org")
	}

	role, ok := claims["role"].(string)
	if !ok {
		role = RoleMember
	}
	if _, known := roleRank[role]; !known {
		return Identity{}, errors.New("unknown role")
	}

	sub, _ := claims["sub"].(string)

	return Identity{OrgID: org, Subject: sub, Role: role}, nil
}
