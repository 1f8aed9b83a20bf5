package store

import "database/sql"

// migration is one ordered, named schema change. Migrations never run
// twice: the migrations table records which identifiers have already
// applied, so opening an older database upgrades it in place instead of
// requiring a fresh one.
type migration struct {
	id    string
	stmts []string
}

var migrations = []migration{
	{
		id: "create basic tables",
		stmts: []string{
			`CREATE TABLE Events(
				event_id INTEGER PRIMARY KEY NOT NULL,
				event_type_id INT NOT NULL,
				type_id INT,
				address INT NOT NULL,
				size INT,
				frame INT NOT NULL,
				callstack_id INT
			)`,
			`CREATE TABLE FrameStats(
				frame INTEGER PRIMARY KEY NOT NULL,
				allocs INT NOT NULL,
				frees INT NOT NULL,
				size INT NOT NULL
			)`,
			`CREATE TABLE Types(
				type_id INTEGER PRIMARY KEY NOT NULL,
				name TEXT NOT NULL UNIQUE
			)`,
			`CREATE TABLE Callstacks(
				callstack_id INTEGER PRIMARY KEY NOT NULL,
				callstack TEXT NOT NULL UNIQUE
			)`,
			`CREATE INDEX frame_index ON Events(frame ASC)`,
		},
	},
}

// upgrade applies every migration not yet recorded in the Migrations
// table, each inside its own transaction.
func upgrade(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS Migrations (
		identifier VARCHAR(128) PRIMARY KEY NOT NULL,
		position INT
	)`); err != nil {
		return err
	}

	rows, err := db.Query(`SELECT identifier FROM Migrations ORDER BY position`)
	if err != nil {
		return err
	}
	done := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		done[id] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for i, m := range migrations {
		if done[m.id] {
			continue
		}
		if err := applyMigration(db, m, i); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, m migration, position int) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	for _, stmt := range m.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return err
		}
	}
	if _, err := tx.Exec(`INSERT INTO Migrations (identifier, position) VALUES (?, ?)`, m.id, position); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
