package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/campusvote/config"
	"github.com/lvdashuaibi/campusvote/internal/model"
)

const mysqlDuplicateEntry = 1062

type MySQLRepository struct {
	masterDB *sql.DB
	slaveDB  *sql.DB
}

// NewMySQLRepository 主库负责写入和强一致读，从库不可用时退回主库
func NewMySQLRepository(cfg config.MySQLConfig) (*MySQLRepository, error) {
	masterDB, err := sql.Open("mysql", cfg.Master)
	if err != nil {
		return nil, fmt.Errorf("连接主数据库失败: %w", err)
	}

	masterDB.SetMaxOpenConns(cfg.MaxOpenConns)
	masterDB.SetMaxIdleConns(cfg.MaxIdleConns)
	masterDB.SetConnMaxLifetime(time.Hour)

	if err = masterDB.Ping(); err != nil {
		return nil, fmt.Errorf("主数据库连接测试失败: %w", err)
	}

	slaveDB := masterDB
	if cfg.Slave != "" {
		slaveDB, err = sql.Open("mysql", cfg.Slave)
		if err != nil {
			return nil, fmt.Errorf("连接从数据库失败: %w", err)
		}

		slaveDB.SetMaxOpenConns(cfg.MaxOpenConns)
		slaveDB.SetMaxIdleConns(cfg.MaxIdleConns)
		slaveDB.SetConnMaxLifetime(time.Hour)

		if err = slaveDB.Ping(); err != nil {
			zap.S().Warnf("从数据库连接测试失败: %v，将使用主数据库代替", err)
			slaveDB.Close()
			slaveDB = masterDB
		}
	}

	return newMySQLRepository(masterDB, slaveDB), nil
}

func newMySQLRepository(master, slave *sql.DB) *MySQLRepository {
	return &MySQLRepository{masterDB: master, slaveDB: slave}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		uid VARCHAR(128) PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		role VARCHAR(16) NOT NULL,
		first_name VARCHAR(120) NOT NULL,
		last_name VARCHAR(120) NOT NULL,
		matric_number VARCHAR(64) NOT NULL DEFAULT '',
		faculty VARCHAR(120) NOT NULL DEFAULT '',
		department VARCHAR(120) NOT NULL DEFAULT '',
		level VARCHAR(16) NOT NULL DEFAULT '',
		staff_id VARCHAR(64) NOT NULL DEFAULT '',
		created_at DATETIME(3) NOT NULL,
		INDEX idx_accounts_role (role, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS login_ids (
		login_key VARCHAR(64) PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		uid VARCHAR(128) NOT NULL DEFAULT '',
		kind VARCHAR(16) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS candidates (
		id CHAR(36) PRIMARY KEY,
		name VARCHAR(120) NOT NULL,
		position VARCHAR(120) NOT NULL,
		image_url TEXT NOT NULL,
		manifesto TEXT NOT NULL,
		created_at DATETIME(3) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS election (
		id TINYINT PRIMARY KEY,
		title VARCHAR(200) NOT NULL,
		description TEXT NOT NULL,
		instructions TEXT NOT NULL,
		status VARCHAR(16) NOT NULL,
		start_date DATETIME(3) NULL,
		end_date DATETIME(3) NULL,
		candidate_deadline DATETIME(3) NULL,
		results_visibility VARCHAR(16) NOT NULL,
		auto_transition BOOLEAN NOT NULL DEFAULT FALSE,
		last_updated DATETIME(3) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS votes (
		student_id VARCHAR(128) PRIMARY KEY,
		submitted BOOLEAN NOT NULL,
		voted_at DATETIME(3) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS vote_selections (
		student_id VARCHAR(128) NOT NULL,
		position VARCHAR(120) NOT NULL,
		candidate_id CHAR(36) NOT NULL,
		PRIMARY KEY (student_id, position)
	)`,
}

// CreateSchema 建表，可重复执行
func (r *MySQLRepository) CreateSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.masterDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("创建数据表失败: %w", err)
		}
	}
	return nil
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

const accountColumns = "uid, email, role, first_name, last_name, matric_number, faculty, department, level, staff_id, created_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*model.AccountRecord, error) {
	var rec model.AccountRecord
	err := row.Scan(&rec.UID, &rec.Email, &rec.Role, &rec.FirstName, &rec.LastName,
		&rec.MatricNumber, &rec.Faculty, &rec.Department, &rec.Level, &rec.StaffID, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *MySQLRepository) GetAccount(ctx context.Context, uid string) (*model.AccountRecord, error) {
	row := r.slaveDB.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE uid = ?", uid)
	rec, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询账户失败: %w", err)
	}
	return rec, nil
}

func (r *MySQLRepository) CreateAccount(ctx context.Context, rec *model.AccountRecord) error {
	if err := model.Validate(rec); err != nil {
		return err
	}
	_, err := r.masterDB.ExecContext(ctx,
		"INSERT INTO accounts ("+accountColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.UID, rec.Email, string(rec.Role), rec.FirstName, rec.LastName,
		rec.MatricNumber, rec.Faculty, rec.Department, rec.Level, rec.StaffID, rec.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("创建账户失败: %w", err)
	}
	return nil
}

func (r *MySQLRepository) ListStudents(ctx context.Context) ([]*model.AccountRecord, error) {
	rows, err := r.slaveDB.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE role = ? ORDER BY created_at", string(model.RoleStudent))
	if err != nil {
		return nil, fmt.Errorf("查询学生列表失败: %w", err)
	}
	defer rows.Close()

	out := make([]*model.AccountRecord, 0)
	for rows.Next() {
		rec, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描学生记录失败: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代学生记录失败: %w", err)
	}
	return out, nil
}

func (r *MySQLRepository) CountStudents(ctx context.Context) (int, error) {
	var n int
	err := r.slaveDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM accounts WHERE role = ?", string(model.RoleStudent)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("统计学生数量失败: %w", err)
	}
	return n, nil
}

func (r *MySQLRepository) ReserveLoginID(ctx context.Context, rec *model.LoginID) error {
	if err := model.Validate(rec); err != nil {
		return err
	}
	_, err := r.masterDB.ExecContext(ctx,
		"INSERT INTO login_ids (login_key, email, uid, kind) VALUES (?, ?, ?, ?)",
		rec.Key, rec.Email, rec.UID, string(rec.Kind))
	if err != nil {
		if isDuplicate(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("登记学号失败: %w", err)
	}
	return nil
}

func (r *MySQLRepository) GetLoginID(ctx context.Context, key string) (*model.LoginID, error) {
	var rec model.LoginID
	err := r.slaveDB.QueryRowContext(ctx,
		"SELECT login_key, email, uid, kind FROM login_ids WHERE login_key = ?", key).
		Scan(&rec.Key, &rec.Email, &rec.UID, &rec.Kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询学号失败: %w", err)
	}
	if err := model.Validate(&rec); err != nil {
		return nil, fmt.Errorf("学号记录无效: %w", err)
	}
	return &rec, nil
}

func (r *MySQLRepository) ReleaseLoginID(ctx context.Context, key string) error {
	if _, err := r.masterDB.ExecContext(ctx, "DELETE FROM login_ids WHERE login_key = ?", key); err != nil {
		return fmt.Errorf("释放学号失败: %w", err)
	}
	return nil
}

const candidateColumns = "id, name, position, image_url, manifesto, created_at"

func (r *MySQLRepository) CreateCandidate(ctx context.Context, c *model.Candidate) error {
	if err := model.Validate(c); err != nil {
		return err
	}
	id := uuid.NewString()
	_, err := r.masterDB.ExecContext(ctx,
		"INSERT INTO candidates ("+candidateColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		id, c.Name, c.Position, c.ImageURL, c.Manifesto, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("创建候选人失败: %w", err)
	}
	c.ID = id
	return nil
}

func scanCandidate(row rowScanner) (*model.Candidate, error) {
	var c model.Candidate
	if err := row.Scan(&c.ID, &c.Name, &c.Position, &c.ImageURL, &c.Manifesto, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *MySQLRepository) GetCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	c, err := scanCandidate(r.slaveDB.QueryRowContext(ctx, "SELECT "+candidateColumns+" FROM candidates WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询候选人失败: %w", err)
	}
	return c, nil
}

func (r *MySQLRepository) ListCandidates(ctx context.Context) ([]*model.Candidate, error) {
	rows, err := r.slaveDB.QueryContext(ctx, "SELECT "+candidateColumns+" FROM candidates ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("查询候选人列表失败: %w", err)
	}
	defer rows.Close()

	out := make([]*model.Candidate, 0)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描候选人失败: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代候选人失败: %w", err)
	}
	return out, nil
}

func (r *MySQLRepository) UpdateCandidateImage(ctx context.Context, id, imageURL string) error {
	res, err := r.masterDB.ExecContext(ctx, "UPDATE candidates SET image_url = ? WHERE id = ?", imageURL, id)
	if err != nil {
		return fmt.Errorf("更新候选人照片失败: %w", err)
	}
	return requireAffected(res)
}

func (r *MySQLRepository) DeleteCandidate(ctx context.Context, id string) error {
	res, err := r.masterDB.ExecContext(ctx, "DELETE FROM candidates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("删除候选人失败: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取更新结果失败: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func (r *MySQLRepository) GetElection(ctx context.Context) (*model.ElectionConfig, error) {
	var (
		cfg                  model.ElectionConfig
		status, visibility   string
		start, end, deadline sql.NullTime
	)
	err := r.masterDB.QueryRowContext(ctx, `SELECT title, description, instructions, status, start_date, end_date,
		candidate_deadline, results_visibility, auto_transition, last_updated FROM election WHERE id = 1`).
		Scan(&cfg.Title, &cfg.Description, &cfg.Instructions, &status, &start, &end,
			&deadline, &visibility, &cfg.AutoTransition, &cfg.LastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询选举配置失败: %w", err)
	}

	if cfg.Status, err = model.ParseElectionStatus(status); err != nil {
		return nil, err
	}
	if cfg.ResultsVisibility, err = model.ParseResultsVisibility(visibility); err != nil {
		return nil, err
	}
	cfg.StartDate, cfg.EndDate, cfg.CandidateDeadline = start.Time, end.Time, deadline.Time
	return &cfg, nil
}

func (r *MySQLRepository) SaveElection(ctx context.Context, cfg *model.ElectionConfig) error {
	if err := model.Validate(cfg); err != nil {
		return err
	}
	query := `INSERT INTO election (id, title, description, instructions, status, start_date, end_date,
			 candidate_deadline, results_visibility, auto_transition, last_updated)
			 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON DUPLICATE KEY UPDATE
			 title = VALUES(title),
			 description = VALUES(description),
			 instructions = VALUES(instructions),
			 status = VALUES(status),
			 start_date = VALUES(start_date),
			 end_date = VALUES(end_date),
			 candidate_deadline = VALUES(candidate_deadline),
			 results_visibility = VALUES(results_visibility),
			 auto_transition = VALUES(auto_transition),
			 last_updated = VALUES(last_updated)`

	_, err := r.masterDB.ExecContext(ctx, query,
		cfg.Title, cfg.Description, cfg.Instructions, string(cfg.Status),
		nullTime(cfg.StartDate), nullTime(cfg.EndDate), nullTime(cfg.CandidateDeadline),
		string(cfg.ResultsVisibility), cfg.AutoTransition, cfg.LastUpdated)
	if err != nil {
		return fmt.Errorf("保存选举配置失败: %w", err)
	}
	return nil
}

// RecordVote votes 主键冲突即重复投票，选择明细在同一事务中写入
func (r *MySQLRepository) RecordVote(ctx context.Context, v *model.VoteRecord) error {
	if _, err := decodeVote(v); err != nil {
		return err
	}

	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO votes (student_id, submitted, voted_at) VALUES (?, ?, ?)",
		v.StudentID, v.Submitted, v.Timestamp)
	if err != nil {
		tx.Rollback()
		if isDuplicate(err) {
			return ErrAlreadyVoted
		}
		return fmt.Errorf("写入投票失败: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO vote_selections (student_id, position, candidate_id) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("准备投票明细语句失败: %w", err)
	}
	defer stmt.Close()

	positions := make([]string, 0, len(v.PositionSelections))
	for pos := range v.PositionSelections {
		positions = append(positions, pos)
	}
	sort.Strings(positions)

	for _, pos := range positions {
		if _, err := stmt.ExecContext(ctx, v.StudentID, pos, v.PositionSelections[pos]); err != nil {
			tx.Rollback()
			return fmt.Errorf("记录职位 %s 的选择失败: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// HasVoted 读主库，避免复制延迟导致刚投票的学生看到未投票
func (r *MySQLRepository) HasVoted(ctx context.Context, studentID string) (bool, error) {
	var submitted bool
	err := r.masterDB.QueryRowContext(ctx, "SELECT submitted FROM votes WHERE student_id = ?", studentID).Scan(&submitted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("查询投票记录失败: %w", err)
	}
	return submitted, nil
}

func (r *MySQLRepository) ListSubmittedVotes(ctx context.Context) ([]*model.VoteRecord, error) {
	rows, err := r.slaveDB.QueryContext(ctx, `SELECT v.student_id, v.voted_at, s.position, s.candidate_id
		FROM votes v JOIN vote_selections s ON s.student_id = v.student_id
		WHERE v.submitted = TRUE
		ORDER BY v.voted_at, v.student_id`)
	if err != nil {
		return nil, fmt.Errorf("查询投票列表失败: %w", err)
	}
	defer rows.Close()

	out := make([]*model.VoteRecord, 0)
	byStudent := make(map[string]*model.VoteRecord)
	for rows.Next() {
		var (
			studentID, pos, candidateID string
			votedAt                     time.Time
		)
		if err := rows.Scan(&studentID, &votedAt, &pos, &candidateID); err != nil {
			return nil, fmt.Errorf("扫描投票记录失败: %w", err)
		}
		v, ok := byStudent[studentID]
		if !ok {
			v = &model.VoteRecord{
				StudentID:          studentID,
				PositionSelections: make(map[string]string),
				Submitted:          true,
				Timestamp:          votedAt,
			}
			byStudent[studentID] = v
			out = append(out, v)
		}
		v.PositionSelections[pos] = candidateID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代投票记录失败: %w", err)
	}
	return out, nil
}

func (r *MySQLRepository) CountSubmittedVotes(ctx context.Context) (int, error) {
	var n int
	if err := r.slaveDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM votes WHERE submitted = TRUE").Scan(&n); err != nil {
		return 0, fmt.Errorf("统计投票数量失败: %w", err)
	}
	return n, nil
}

// Close 关闭数据库连接
func (r *MySQLRepository) Close() error {
	var err error
	if r.slaveDB != nil && r.slaveDB != r.masterDB {
		err = r.slaveDB.Close()
	}
	if r.masterDB != nil {
		if cerr := r.masterDB.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}
