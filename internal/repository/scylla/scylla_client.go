package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"verification-service/internal/config"
	"verification-service/internal/util"
)

// PreparedStatements holds the statements used by the verification repository.
type PreparedStatements struct {
	UpsertPhoneVerification *gocql.Query
	GetPhoneVerification    *gocql.Query
	CreatePhoneToUser       *gocql.Query
	GetPhoneOwner           *gocql.Query
	MarkPhoneVerified       *gocql.Query

	CreateSubmission        *gocql.Query
	GetSubmission           *gocql.Query
	GetSubmissionsByUser    *gocql.Query
	GetSubmissionByDigest   *gocql.Query
	ListSubmissionsByStatus *gocql.Query

	AppendAudit     *gocql.Query
	ListAuditByUser *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if !cfg.IsDevelopment() {
		cluster.SslOpts = &gocql.SslOptions{
			CaPath:                 "/root/certs/ca.pem",
			CertPath:               "/root/certs/server.pem",
			KeyPath:                "/root/certs/server.key",
			EnableHostVerification: true,
		}
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	prepared.UpsertPhoneVerification = s.Session.Query(`
        INSERT INTO phone_verifications (
            user_bucket, user_id, phone_hash, phone_masked, verified,
            created_at, updated_at, verified_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetPhoneVerification = s.Session.Query(`
        SELECT user_bucket, user_id, phone_hash, phone_masked, verified,
            created_at, updated_at, verified_at
        FROM phone_verifications WHERE user_bucket = ? AND user_id = ?`)

	prepared.CreatePhoneToUser = s.Session.Query(`
        INSERT INTO phone_to_user (phone_hash, user_id, created_at)
        VALUES (?, ?, ?)`)

	prepared.GetPhoneOwner = s.Session.Query(`
        SELECT user_id FROM phone_to_user WHERE phone_hash = ?`)

	prepared.MarkPhoneVerified = s.Session.Query(`
        UPDATE phone_verifications SET verified = ?, verified_at = ?, updated_at = ?
        WHERE user_bucket = ? AND user_id = ?`)

	prepared.CreateSubmission = s.Session.Query(`
        INSERT INTO seller_verifications (
            id, user_bucket, user_id, national_id_encrypted, national_id_dek,
            national_id_key_id, encryption_version, national_id_digest,
            national_id_masked, date_of_birth, billing_address, status,
            submitted_at, reviewed_by, reviewed_at, reviewer_ip, rejection_reason
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.GetSubmission = s.Session.Query(`
        SELECT id, user_bucket, user_id, national_id_encrypted, national_id_dek,
            national_id_key_id, encryption_version, national_id_digest,
            national_id_masked, date_of_birth, billing_address, status,
            submitted_at, reviewed_by, reviewed_at, reviewer_ip, rejection_reason
        FROM seller_verifications WHERE id = ?`)

	prepared.GetSubmissionsByUser = s.Session.Query(`
        SELECT id, user_bucket, user_id, national_id_encrypted, national_id_dek,
            national_id_key_id, encryption_version, national_id_digest,
            national_id_masked, date_of_birth, billing_address, status,
            submitted_at, reviewed_by, reviewed_at, reviewer_ip, rejection_reason
        FROM seller_verifications_by_user WHERE user_id = ?`)

	prepared.GetSubmissionByDigest = s.Session.Query(`
        SELECT submission_id, user_id FROM national_id_index WHERE national_id_digest = ?`)

	prepared.ListSubmissionsByStatus = s.Session.Query(`
        SELECT id, user_bucket, user_id, national_id_encrypted, national_id_dek,
            national_id_key_id, encryption_version, national_id_digest,
            national_id_masked, date_of_birth, billing_address, status,
            submitted_at, reviewed_by, reviewed_at, reviewer_ip, rejection_reason
        FROM seller_verifications_by_status WHERE status = ? LIMIT ?`)

	prepared.AppendAudit = s.Session.Query(`
        INSERT INTO audit_logs (
            date_bucket, id, user_id, action, performed_by, details,
            ip_address, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	prepared.ListAuditByUser = s.Session.Query(`
        SELECT id, date_bucket, user_id, action, performed_by, details,
            ip_address, created_at
        FROM audit_logs_by_user WHERE user_id = ? LIMIT ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
