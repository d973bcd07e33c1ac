package database

import (
	"time"
)

func (db *PgRepository) CreateAccount(params CreateAccountParams) (User, error) {
	row := db.conn.QueryRow(
		"INSERT INTO accounts (external_id, name, email, password_hash, org_code, role, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $7) "+
			"RETURNING id, external_id, name, email, org_code, role, job_title, created_at, updated_at",
		params.ExternalId,
		params.Name,
		params.Email,
		params.PasswordHash,
		params.OrgCode,
		params.Role,
		time.Now().UTC(),
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.ExternalId,
		&u.Name,
		&u.Email,
		&u.OrgCode,
		&u.Role,
		&u.JobTitle,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, email, password_hash, org_code, role, job_title, created_at, updated_at "+
			"FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.ExternalId,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.OrgCode,
		&u.Role,
		&u.JobTitle,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgRepository) GetAccountByExternalId(externalId string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, email, org_code, role, job_title, created_at, updated_at "+
			"FROM accounts WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.ExternalId,
		&u.Name,
		&u.Email,
		&u.OrgCode,
		&u.Role,
		&u.JobTitle,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgRepository) UpdateProfile(params UpdateProfileParams) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE accounts SET name = $2, job_title = $3, updated_at = $4 WHERE id = $1 "+
			"RETURNING id, external_id, name, email, org_code, role, job_title, created_at, updated_at",
		params.UserId,
		params.Name,
		params.JobTitle,
		time.Now().UTC(),
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.ExternalId,
		&u.Name,
		&u.Email,
		&u.OrgCode,
		&u.Role,
		&u.JobTitle,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgRepository) ListOrgUsers(orgCode string) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT id, external_id, name, email, org_code, role, job_title, created_at, updated_at "+
			"FROM accounts WHERE org_code = $1 ORDER BY name",
		orgCode,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(
			&u.Id,
			&u.ExternalId,
			&u.Name,
			&u.Email,
			&u.OrgCode,
			&u.Role,
			&u.JobTitle,
			&u.CreatedAt,
			&u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}
