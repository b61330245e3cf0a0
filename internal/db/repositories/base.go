package repositories

import (
	"database/sql"

	"drydock/internal/db"
)

type Repositories struct {
	Workspaces    *WorkspaceRepo
	Builds        *BuildRepo
	WorkspaceLogs *WorkspaceLogRepo
	Jobs          *JobRepo
	Projects      *ProjectRepo
	db            db.Database // Store reference to database for transactions
}

func New(database db.Database) *Repositories {
	conn := database.Conn()

	return &Repositories{
		Workspaces:    NewWorkspaceRepo(conn),
		Builds:        NewBuildRepo(conn),
		WorkspaceLogs: NewWorkspaceLogRepo(conn),
		Jobs:          NewJobRepo(conn),
		Projects:      NewProjectRepo(conn),
		db:            database,
	}
}

// BeginTx starts a database transaction
func (r *Repositories) BeginTx() (*sql.Tx, error) {
	return r.db.Conn().Begin()
}
