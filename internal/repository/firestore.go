package repository

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lvdashuaibi/campusvote/internal/model"
	"github.com/lvdashuaibi/campusvote/internal/subscription"
)

const (
	accountsCollection   = "accounts"
	loginIDsCollection   = "loginIds"
	candidatesCollection = "candidates"
	votesCollection      = "votes"
	electionCollection   = "election"
	electionDoc          = "status"
)

// FirestoreStore Firestore 文档数据库实现
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func isCode(err error, c codes.Code) bool {
	return status.Code(err) == c
}

func (s *FirestoreStore) GetAccount(ctx context.Context, uid string) (*model.AccountRecord, error) {
	doc, err := s.client.Collection(accountsCollection).Doc(uid).Get(ctx)
	if err != nil {
		if isCode(err, codes.NotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询账户失败: %w", err)
	}

	var rec model.AccountRecord
	if err := doc.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("解析账户失败: %w", err)
	}
	rec.UID = doc.Ref.ID
	return &rec, nil
}

func (s *FirestoreStore) CreateAccount(ctx context.Context, rec *model.AccountRecord) error {
	if err := model.Validate(rec); err != nil {
		return err
	}
	if _, err := s.client.Collection(accountsCollection).Doc(rec.UID).Create(ctx, rec); err != nil {
		if isCode(err, codes.AlreadyExists) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("创建账户失败: %w", err)
	}
	return nil
}

func (s *FirestoreStore) studentsQuery() firestore.Query {
	return s.client.Collection(accountsCollection).Where("role", "==", string(model.RoleStudent))
}

func (s *FirestoreStore) ListStudents(ctx context.Context) ([]*model.AccountRecord, error) {
	iter := s.studentsQuery().OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	out := make([]*model.AccountRecord, 0)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("查询学生列表失败: %w", err)
		}

		var rec model.AccountRecord
		if err := doc.DataTo(&rec); err != nil {
			zap.S().Warnf("跳过无法解析的账户 %s: %v", doc.Ref.ID, err)
			continue
		}
		rec.UID = doc.Ref.ID
		out = append(out, &rec)
	}
	return out, nil
}

func (s *FirestoreStore) CountStudents(ctx context.Context) (int, error) {
	docs, err := s.studentsQuery().Select().Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("统计学生数量失败: %w", err)
	}
	return len(docs), nil
}

func (s *FirestoreStore) ReserveLoginID(ctx context.Context, rec *model.LoginID) error {
	if err := model.Validate(rec); err != nil {
		return err
	}
	if _, err := s.client.Collection(loginIDsCollection).Doc(rec.Key).Create(ctx, rec); err != nil {
		if isCode(err, codes.AlreadyExists) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("登记学号失败: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetLoginID(ctx context.Context, key string) (*model.LoginID, error) {
	doc, err := s.client.Collection(loginIDsCollection).Doc(key).Get(ctx)
	if err != nil {
		if isCode(err, codes.NotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询学号失败: %w", err)
	}

	var rec model.LoginID
	if err := doc.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("解析学号记录失败: %w", err)
	}
	rec.Key = doc.Ref.ID
	if err := model.Validate(&rec); err != nil {
		return nil, fmt.Errorf("学号记录无效: %w", err)
	}
	return &rec, nil
}

func (s *FirestoreStore) ReleaseLoginID(ctx context.Context, key string) error {
	if _, err := s.client.Collection(loginIDsCollection).Doc(key).Delete(ctx); err != nil {
		return fmt.Errorf("释放学号失败: %w", err)
	}
	return nil
}

func (s *FirestoreStore) CreateCandidate(ctx context.Context, c *model.Candidate) error {
	if err := model.Validate(c); err != nil {
		return err
	}
	ref := s.client.Collection(candidatesCollection).NewDoc()
	if _, err := ref.Create(ctx, c); err != nil {
		return fmt.Errorf("创建候选人失败: %w", err)
	}
	c.ID = ref.ID
	return nil
}

func (s *FirestoreStore) GetCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	doc, err := s.client.Collection(candidatesCollection).Doc(id).Get(ctx)
	if err != nil {
		if isCode(err, codes.NotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询候选人失败: %w", err)
	}
	return decodeCandidate(doc)
}

func decodeCandidate(doc *firestore.DocumentSnapshot) (*model.Candidate, error) {
	var c model.Candidate
	if err := doc.DataTo(&c); err != nil {
		return nil, fmt.Errorf("解析候选人失败: %w", err)
	}
	c.ID = doc.Ref.ID
	if err := model.Validate(&c); err != nil {
		return nil, fmt.Errorf("候选人记录无效: %w", err)
	}
	return &c, nil
}

func (s *FirestoreStore) ListCandidates(ctx context.Context) ([]*model.Candidate, error) {
	iter := s.client.Collection(candidatesCollection).OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	out := make([]*model.Candidate, 0)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("查询候选人列表失败: %w", err)
		}
		c, err := decodeCandidate(doc)
		if err != nil {
			zap.S().Warnf("跳过候选人 %s: %v", doc.Ref.ID, err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *FirestoreStore) UpdateCandidateImage(ctx context.Context, id, imageURL string) error {
	_, err := s.client.Collection(candidatesCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "imageUrl", Value: imageURL},
	})
	if err != nil {
		if isCode(err, codes.NotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("更新候选人照片失败: %w", err)
	}
	return nil
}

func (s *FirestoreStore) DeleteCandidate(ctx context.Context, id string) error {
	if _, err := s.client.Collection(candidatesCollection).Doc(id).Delete(ctx, firestore.Exists); err != nil {
		if isCode(err, codes.NotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("删除候选人失败: %w", err)
	}
	return nil
}

func (s *FirestoreStore) electionRef() *firestore.DocumentRef {
	return s.client.Collection(electionCollection).Doc(electionDoc)
}

func decodeElection(doc *firestore.DocumentSnapshot) (*model.ElectionConfig, error) {
	var cfg model.ElectionConfig
	if err := doc.DataTo(&cfg); err != nil {
		return nil, fmt.Errorf("解析选举配置失败: %w", err)
	}
	// 兼容旧数据中的 "Active" 等写法
	st, err := model.ParseElectionStatus(string(cfg.Status))
	if err != nil {
		return nil, err
	}
	cfg.Status = st
	if cfg.ResultsVisibility, err = model.ParseResultsVisibility(string(cfg.ResultsVisibility)); err != nil {
		return nil, err
	}
	if err := model.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("选举配置无效: %w", err)
	}
	return &cfg, nil
}

func (s *FirestoreStore) GetElection(ctx context.Context) (*model.ElectionConfig, error) {
	doc, err := s.electionRef().Get(ctx)
	if err != nil {
		if isCode(err, codes.NotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("查询选举配置失败: %w", err)
	}
	return decodeElection(doc)
}

func (s *FirestoreStore) SaveElection(ctx context.Context, cfg *model.ElectionConfig) error {
	if err := model.Validate(cfg); err != nil {
		return err
	}
	if _, err := s.electionRef().Set(ctx, cfg); err != nil {
		return fmt.Errorf("保存选举配置失败: %w", err)
	}
	return nil
}

// RecordVote Create 在文档已存在时返回 AlreadyExists，检查与写入由服务端原子完成
func (s *FirestoreStore) RecordVote(ctx context.Context, v *model.VoteRecord) error {
	if _, err := decodeVote(v); err != nil {
		return err
	}
	if _, err := s.client.Collection(votesCollection).Doc(v.StudentID).Create(ctx, v); err != nil {
		if isCode(err, codes.AlreadyExists) {
			return ErrAlreadyVoted
		}
		return fmt.Errorf("写入投票失败: %w", err)
	}
	return nil
}

// HasVoted 先查 votes/{studentId}，不存在时再按 studentId 字段查找随机ID的旧记录
func (s *FirestoreStore) HasVoted(ctx context.Context, studentID string) (bool, error) {
	doc, err := s.client.Collection(votesCollection).Doc(studentID).Get(ctx)
	if err == nil {
		return submittedField(doc.Ref.ID, doc.Data())
	}
	if !isCode(err, codes.NotFound) {
		return false, fmt.Errorf("查询投票记录失败: %w", err)
	}

	legacy, err := s.submittedVotes().Where("studentId", "==", studentID).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, fmt.Errorf("查询投票记录失败: %w", err)
	}
	return len(legacy) > 0, nil
}

// submittedField 缺少 submitted 字段或类型不符时返回 ErrInvalidVoteRecord
func submittedField(id string, data map[string]interface{}) (bool, error) {
	v, ok := data["submitted"]
	if !ok {
		return false, fmt.Errorf("%w: %s 缺少 submitted 字段", ErrInvalidVoteRecord, id)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s 的 submitted 字段类型为 %T", ErrInvalidVoteRecord, id, v)
	}
	return b, nil
}

func (s *FirestoreStore) submittedVotes() firestore.Query {
	return s.client.Collection(votesCollection).Where("submitted", "==", true)
}

func (s *FirestoreStore) ListSubmittedVotes(ctx context.Context) ([]*model.VoteRecord, error) {
	iter := s.submittedVotes().Documents(ctx)
	defer iter.Stop()

	out := make([]*model.VoteRecord, 0)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("查询投票列表失败: %w", err)
		}

		var v model.VoteRecord
		if err := doc.DataTo(&v); err != nil {
			zap.S().Warnf("跳过无法解析的投票 %s: %v", doc.Ref.ID, err)
			continue
		}
		if v.StudentID == "" {
			v.StudentID = doc.Ref.ID
		}
		if _, err := decodeVote(&v); err != nil {
			zap.S().Warnf("跳过无效投票 %s: %v", doc.Ref.ID, err)
			continue
		}
		out = append(out, &v)
	}
	return out, nil
}

func (s *FirestoreStore) CountSubmittedVotes(ctx context.Context) (int, error) {
	docs, err := s.submittedVotes().Select().Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("统计投票数量失败: %w", err)
	}
	return len(docs), nil
}

// WatchVotes 每次 votes 集合快照变化时回调
func (s *FirestoreStore) WatchVotes(ctx context.Context, onChange func()) (subscription.Subscription, error) {
	return watchQuery(ctx, s.submittedVotes(), "votes", onChange), nil
}

func (s *FirestoreStore) WatchCandidates(ctx context.Context, onChange func()) (subscription.Subscription, error) {
	return watchQuery(ctx, s.client.Collection(candidatesCollection).Query, "candidates", onChange), nil
}

func watchQuery(ctx context.Context, q firestore.Query, name string, onChange func()) subscription.Subscription {
	ctx, cancel := context.WithCancel(ctx)
	it := q.Snapshots(ctx)

	go func() {
		for {
			if _, err := it.Next(); err != nil {
				if status.Code(err) != codes.Canceled && ctx.Err() == nil {
					zap.S().Errorf("监听 %s 失败: %v", name, err)
				}
				return
			}
			onChange()
		}
	}()

	return subscription.New(func() {
		cancel()
		it.Stop()
	})
}

// WatchElection 配置文档变化时回调；文档不存在时推送默认配置
func (s *FirestoreStore) WatchElection(ctx context.Context, fn func(*model.ElectionConfig)) (subscription.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.electionRef().Snapshots(ctx)

	go func() {
		for {
			snap, err := it.Next()
			if err != nil {
				if status.Code(err) != codes.Canceled && ctx.Err() == nil {
					zap.S().Errorf("监听选举配置失败: %v", err)
				}
				return
			}
			if !snap.Exists() {
				fn(model.DefaultElection())
				continue
			}
			cfg, err := decodeElection(snap)
			if err != nil {
				zap.S().Warnf("忽略无效的选举配置: %v", err)
				continue
			}
			fn(cfg)
		}
	}()

	return subscription.New(func() {
		cancel()
		it.Stop()
	}), nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
