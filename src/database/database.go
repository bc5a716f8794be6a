package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/ahorrito/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateUserTable()
	migrateTransactionsTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		total_saved_cents INTEGER NOT NULL DEFAULT 0,
		savings_strategy TEXT NOT NULL DEFAULT 'ROUNDING',
		rounding_multiple INTEGER NOT NULL DEFAULT 1000,
		saving_percentage TEXT NOT NULL DEFAULT '5',
		min_safe_balance_cents INTEGER NOT NULL DEFAULT 0,
		balance_policy TEXT NOT NULL DEFAULT 'NO_SAVING',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		user_agent TEXT,
		client_ip TEXT,
		is_blocked BOOLEAN DEFAULT FALSE,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reference_id TEXT NOT NULL UNIQUE,
		user_id INTEGER NOT NULL,
		amount_cents INTEGER NOT NULL,
		description TEXT NOT NULL,
		merchant_name TEXT,
		transaction_type TEXT NOT NULL,
		status TEXT NOT NULL,
		original_amount_cents INTEGER,
		rounded_amount_cents INTEGER,
		saving_amount_cents INTEGER,
		notification_source TEXT,
		bank_reference TEXT,
		transaction_date TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user_status ON transactions(user_id, status);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// tableColumns returns the existing column set of a table, or nil when the
// table does not exist yet (creation will bring the full schema).
func tableColumns(table string) map[string]bool {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&tableName)
	if err != nil {
		if err != sql.ErrNoRows {
			if logger.L != nil {
				logger.L.Error("Error checking for table", "table", table, "error", err)
			} else {
				stdlog.Printf("Error checking for table %s: %v", table, err)
			}
		}
		return nil
	}

	rows, err := DB.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema", "table", table, "error", err)
		} else {
			stdlog.Printf("Error querying table schema for %s: %v", table, err)
		}
		return nil
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info", "table", table, "error", err)
			} else {
				stdlog.Printf("Error scanning column info for %s: %v", table, err)
			}
			return nil
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info", "table", table, "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for %s: %v", table, err)
		}
		return nil
	}
	return columnExists
}

func addColumn(table, definition, column string) {
	_, err := DB.Exec("ALTER TABLE " + table + " ADD COLUMN " + definition)
	if err != nil {
		logger.L.Error("Error adding column", "table", table, "column", column, "error", err)
	} else {
		logger.L.Info("Added column", "table", table, "column", column)
	}
}

func migrateUserTable() {
	columnExists := tableColumns("users")
	if columnExists == nil {
		return
	}

	if _, ok := columnExists["total_saved_cents"]; !ok {
		addColumn("users", "total_saved_cents INTEGER NOT NULL DEFAULT 0", "total_saved_cents")
	}
	if _, ok := columnExists["savings_strategy"]; !ok {
		addColumn("users", "savings_strategy TEXT NOT NULL DEFAULT 'ROUNDING'", "savings_strategy")
	}
	if _, ok := columnExists["rounding_multiple"]; !ok {
		addColumn("users", "rounding_multiple INTEGER NOT NULL DEFAULT 1000", "rounding_multiple")
	}
	if _, ok := columnExists["saving_percentage"]; !ok {
		addColumn("users", "saving_percentage TEXT NOT NULL DEFAULT '5'", "saving_percentage")
	}
	if _, ok := columnExists["min_safe_balance_cents"]; !ok {
		addColumn("users", "min_safe_balance_cents INTEGER NOT NULL DEFAULT 0", "min_safe_balance_cents")
	}
	if _, ok := columnExists["balance_policy"]; !ok {
		addColumn("users", "balance_policy TEXT NOT NULL DEFAULT 'NO_SAVING'", "balance_policy")
	}
}

func migrateTransactionsTable() {
	columnExists := tableColumns("transactions")
	if columnExists == nil {
		return
	}

	if _, ok := columnExists["notification_source"]; !ok {
		addColumn("transactions", "notification_source TEXT", "notification_source")
	}
	if _, ok := columnExists["bank_reference"]; !ok {
		addColumn("transactions", "bank_reference TEXT", "bank_reference")
	}
	if _, ok := columnExists["merchant_name"]; !ok {
		addColumn("transactions", "merchant_name TEXT", "merchant_name")
	}
}
