package data

import (
	"database/sql"
	"time"

	"pgscope/internal/core"
)

type InstanceRepo struct {
	db *sql.DB
}

func NewInstanceRepo(db *sql.DB) *InstanceRepo {
	return &InstanceRepo{db: db}
}

func (r *InstanceRepo) Create(inst *core.Instance) error {
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.Exec(
		`INSERT INTO instances (name, host, port, dbname, user, password_enc, ssl_mode, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.Name, inst.Host, inst.Port, inst.DBName, inst.User, inst.PasswordEnc, inst.SSLMode, inst.CreatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	inst.ID = id
	return nil
}

func (r *InstanceRepo) GetAll() ([]core.Instance, error) {
	rows, err := r.db.Query(
		`SELECT id, name, host, port, dbname, user, password_enc, ssl_mode, created_at
		 FROM instances ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []core.Instance
	for rows.Next() {
		var inst core.Instance
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.Host, &inst.Port, &inst.DBName,
			&inst.User, &inst.PasswordEnc, &inst.SSLMode, &inst.CreatedAt); err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func (r *InstanceRepo) GetByID(id int64) (*core.Instance, error) {
	var inst core.Instance
	err := r.db.QueryRow(
		`SELECT id, name, host, port, dbname, user, password_enc, ssl_mode, created_at
		 FROM instances WHERE id = ?`, id).
		Scan(&inst.ID, &inst.Name, &inst.Host, &inst.Port, &inst.DBName,
			&inst.User, &inst.PasswordEnc, &inst.SSLMode, &inst.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *InstanceRepo) Update(inst *core.Instance) error {
	_, err := r.db.Exec(
		`UPDATE instances SET name=?, host=?, port=?, dbname=?, user=?, password_enc=?, ssl_mode=? WHERE id=?`,
		inst.Name, inst.Host, inst.Port, inst.DBName, inst.User, inst.PasswordEnc, inst.SSLMode, inst.ID)
	return err
}

func (r *InstanceRepo) Delete(id int64) error {
	_, err := r.db.Exec(`DELETE FROM instances WHERE id=?`, id)
	return err
}
