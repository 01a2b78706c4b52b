package identity

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcore/checkout/internal/domain"
)

// User is the minimal identity the checkout core needs. Authentication proper
// lives outside this service; the directory only resolves usernames.
type User struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Username string    `json:"username" db:"username"`
}

// Directory resolves usernames to users.
type Directory interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
}

// PostgresDirectory implements Directory using PostgreSQL.
type PostgresDirectory struct {
	db *pgxpool.Pool
}

func NewDirectory(db *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) FindByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := d.db.QueryRow(ctx, `
		SELECT id, username FROM users WHERE username = $1
	`, username).Scan(&u.ID, &u.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const userIDKey = "userID"

// RequireUser resolves the X-User-ID header through the directory and stores
// the user id in the gin context. Requests without a known user get 401.
func RequireUser(directory Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetHeader("X-User-ID")
		if username == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": domain.ErrUserNotFound.Message})
			return
		}

		user, err := directory.FindByUsername(c.Request.Context(), username)
		if err != nil {
			c.AbortWithStatusJSON(domain.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.Set(userIDKey, user.ID)
		c.Next()
	}
}

// UserID reads the authenticated user id stored by RequireUser.
func UserID(c *gin.Context) uuid.UUID {
	id, _ := c.Get(userIDKey)
	userID, _ := id.(uuid.UUID)
	return userID
}
