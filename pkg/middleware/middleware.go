package middleware

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"

	"github.com/wasender/pkg/constant"
	"github.com/wasender/pkg/state"
)

func ClaimIp() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(state.CurrentUserIP, c.ClientIP())
		c.Next()
	}
}

func CheckAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(401, gin.H{"error": constant.TOKEN_REQUIRED})
			c.Abort()
			return
		}

		authToken := strings.Split(authHeader, " ")
		if len(authToken) != 2 || authToken[0] != "Bearer" {
			c.JSON(400, gin.H{"error": constant.MALFORMED_TOKEN})
			c.Abort()
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(authToken[1], claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(os.Getenv("SECRET")), nil
		})
		if err != nil || !token.Valid {
			c.JSON(401, gin.H{"error": constant.INVALID_TOKEN})
			c.Abort()
			return
		}

		if exp, ok := claims["exp"].(float64); !ok || float64(time.Now().Unix()) > exp {
			c.JSON(401, gin.H{"error": constant.TOKEN_EXPIRED})
			c.Abort()
			return
		}

		userID := subject(claims)
		if userID == "" {
			c.JSON(401, gin.H{"error": constant.INVALID_TOKEN})
			c.Abort()
			return
		}
		c.Set(state.CurrentUserId, userID)

		c.Next()
	}
}

// subject returns the tenant id carried by the token.
func subject(claims jwt.MapClaims) string {
	for _, key := range []string{"sub", "uid", "id"} {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
