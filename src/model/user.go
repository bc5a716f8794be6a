package model

import (
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/ahorrito/src/models"
	"golang.org/x/crypto/bcrypt"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID         int64                `json:"id"`
	Username   string               `json:"username"`
	Email      string               `json:"email"`
	Password   string               `json:"-"` // "-" means do not include in JSON output
	TotalSaved decimal.Decimal      `json:"total_saved"`
	Savings    models.SavingsConfig `json:"savings_config"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

type Session struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Token        string    `json:"token"`         // Access Token
	RefreshToken string    `json:"refresh_token"` // Refresh Token
	UserAgent    string    `json:"user_agent"`
	ClientIP     string    `json:"client_ip"`
	IsBlocked    bool      `json:"is_blocked"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// HashPassword hashes the user's password using bcrypt.
func (u *User) HashPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a given password with the user's hashed password.
func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
}

// CreateUser inserts a new user into the database with their savings
// configuration (or the schema defaults when none was supplied).
func (u *User) CreateUser(db *sql.DB) error {
	if u.Savings.Strategy == "" {
		u.Savings = models.SavingsConfig{
			Strategy:         models.StrategyRounding,
			RoundingMultiple: 1000,
			SavingPercentage: decimal.NewFromInt(5),
			MinSafeBalance:   decimal.Zero,
			BalancePolicy:    models.PolicyNoSaving,
		}
	}

	query := `
	INSERT INTO users (username, password, email, savings_strategy, rounding_multiple, saving_percentage, min_safe_balance_cents, balance_policy)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(
		u.Username,
		u.Password,
		u.Email,
		string(u.Savings.Strategy),
		u.Savings.RoundingMultiple,
		u.Savings.SavingPercentage.String(),
		models.ToCents(u.Savings.MinSafeBalance),
		string(u.Savings.BalancePolicy),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

const userColumns = `id, username, password, email, total_saved_cents, savings_strategy, rounding_multiple, saving_percentage, min_safe_balance_cents, balance_policy, created_at, updated_at`

func scanUser(row *sql.Row) (*User, error) {
	var user User
	var totalSavedCents, minSafeCents int64
	var percentageStr, strategy, policy string
	err := row.Scan(
		&user.ID, &user.Username, &user.Password, &user.Email,
		&totalSavedCents, &strategy, &user.Savings.RoundingMultiple,
		&percentageStr, &minSafeCents, &policy,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	user.TotalSaved = models.FromCents(totalSavedCents)
	user.Savings.Strategy = models.SavingsStrategy(strategy)
	user.Savings.BalancePolicy = models.BalancePolicy(policy)
	user.Savings.MinSafeBalance = models.FromCents(minSafeCents)
	percentage, err := decimal.NewFromString(percentageStr)
	if err != nil {
		return nil, err
	}
	user.Savings.SavingPercentage = percentage
	return &user, nil
}

// GetUserByUsername retrieves a user from the database by their username.
func GetUserByUsername(db *sql.DB, username string) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

// GetUserByID retrieves a user from the database by their id.
func GetUserByID(db *sql.DB, id int64) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByEmail retrieves a user from the database by their email.
func GetUserByEmail(db *sql.DB, email string) (*User, error) {
	return scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// GetSavingsConfig loads only the savings configuration columns for a user.
func GetSavingsConfig(db *sql.DB, userID int64) (models.SavingsConfig, error) {
	var cfg models.SavingsConfig
	var strategy, policy, percentageStr string
	var minSafeCents int64
	err := db.QueryRow(
		`SELECT savings_strategy, rounding_multiple, saving_percentage, min_safe_balance_cents, balance_policy FROM users WHERE id = ?`,
		userID,
	).Scan(&strategy, &cfg.RoundingMultiple, &percentageStr, &minSafeCents, &policy)
	if err != nil {
		if err == sql.ErrNoRows {
			return cfg, ErrUserNotFound
		}
		return cfg, err
	}
	cfg.Strategy = models.SavingsStrategy(strategy)
	cfg.BalancePolicy = models.BalancePolicy(policy)
	cfg.MinSafeBalance = models.FromCents(minSafeCents)
	percentage, err := decimal.NewFromString(percentageStr)
	if err != nil {
		return cfg, err
	}
	cfg.SavingPercentage = percentage
	return cfg, nil
}

// UpdateSavingsConfig replaces a user's savings configuration.
func UpdateSavingsConfig(db *sql.DB, userID int64, cfg models.SavingsConfig) error {
	res, err := db.Exec(
		`UPDATE users SET savings_strategy = ?, rounding_multiple = ?, saving_percentage = ?, min_safe_balance_cents = ?, balance_policy = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(cfg.Strategy),
		cfg.RoundingMultiple,
		cfg.SavingPercentage.String(),
		models.ToCents(cfg.MinSafeBalance),
		string(cfg.BalancePolicy),
		userID,
	)
	if err != nil {
		return err
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateSession inserts a new session into the database.
func CreateSession(db *sql.DB, session *Session) error {
	query := `
	INSERT INTO sessions (user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	session.CreatedAt = time.Now()
	_, err = stmt.Exec(
		session.UserID,
		session.Token,
		session.RefreshToken,
		session.UserAgent,
		session.ClientIP,
		session.IsBlocked,
		session.ExpiresAt,
		session.CreatedAt,
	)
	return err
}

// GetSessionByToken retrieves an active, non-blocked session by its access token.
func GetSessionByToken(db *sql.DB, token string) (*Session, error) {
	query := `
	SELECT id, user_id, token, refresh_token, user_agent, client_ip, is_blocked, expires_at, created_at
	FROM sessions
	WHERE token = ? AND is_blocked = FALSE AND expires_at > ?`

	row := db.QueryRow(query, token, time.Now())
	var session Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.RefreshToken,
		&session.UserAgent,
		&session.ClientIP,
		&session.IsBlocked,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("session not found, expired, or blocked")
		}
		return nil, err
	}
	return &session, nil
}

// DeleteSessionByToken removes a session from the database based on the access token.
func DeleteSessionByToken(db *sql.DB, token string) error {
	query := `DELETE FROM sessions WHERE token = ?`
	stmt, err := db.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(token)
	return err
}
