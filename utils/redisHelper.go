package utils

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/trend4media/billing_backend/config"
)

// Session is what a login token resolves to.
type Session struct {
	UserId   int    `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func cacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

func sessionKey(token string) string {
	return "Token:" + token
}

func userSessionsKey(userId int) string {
	return "UserTokens:" + fmt.Sprint(userId)
}

// CreateSession stores a new token for the user and returns it.
func CreateSession(ctx context.Context, s Session) (string, error) {
	token := uuid.NewString()
	if err := config.SetRedisObject(ctx, sessionKey(token), &s, config.SessionLifespan()); err != nil {
		return "", err
	}
	if err := config.AddRedisSet(ctx, userSessionsKey(s.UserId), token, config.SessionLifespan()); err != nil {
		return "", err
	}
	return token, nil
}

// GetSession returns nil when the token is unknown or expired.
func GetSession(ctx context.Context, token string) (*Session, error) {
	var s Session
	exists, err := config.GetRedisObject(ctx, sessionKey(token), &s)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return &s, nil
}

func RemoveSession(ctx context.Context, token string, userId int) error {
	if err := config.RemoveRedisKey(ctx, sessionKey(token)); err != nil {
		return err
	}
	return config.RemoveRedisSetMember(ctx, userSessionsKey(userId), token)
}

// RemoveUserSessions logs a user out everywhere, used when they are deactivated or change role.
func RemoveUserSessions(ctx context.Context, userId int) error {
	tokens, err := config.GetRedisSetMembers(ctx, userSessionsKey(userId))
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, sessionKey(t))
	}
	keys = append(keys, userSessionsKey(userId))
	return config.RemoveRedisKey(ctx, keys...)
}

// store instance under Type:id
func StoreRedis(ctx context.Context, typeName string, id any, obj any) error {
	return config.SetRedisObject(ctx, typeName+":"+fmt.Sprint(id), obj, cacheLifespan())
}

// returns false if it does not exist
func RetrieveRedis(ctx context.Context, typeName string, id any, dest any) (bool, error) {
	return config.GetRedisObject(ctx, typeName+":"+fmt.Sprint(id), dest)
}

func RemoveRedisItem(ctx context.Context, typeName string, id any) error {
	return config.RemoveRedisKey(ctx, typeName+":"+fmt.Sprint(id))
}
