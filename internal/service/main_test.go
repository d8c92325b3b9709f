package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"blango/internal/featureflags"
	"blango/internal/models"
	"blango/internal/permissions"
	"blango/internal/repository"
	"blango/internal/testutil"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	passwordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

type recordingFeed struct {
	mu       sync.Mutex
	comments map[uint][]string
}

func (f *recordingFeed) PublishComment(_ context.Context, postID uint, c *models.Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.comments == nil {
		f.comments = make(map[uint][]string)
	}
	f.comments[postID] = append(f.comments[postID], c.Content)
}

type fixture struct {
	db       *gorm.DB
	users    *UserService
	posts    *PostService
	tags     *TagService
	comments *CommentService
	mail     *recordingMailer
	feed     *recordingFeed
	store    *testutil.MemoryStore
}

func newFixture(t *testing.T, flags string) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	tagRepo := repository.NewTagRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	manager := featureflags.NewManager(flags)

	f := &fixture{
		db:    db,
		mail:  &recordingMailer{},
		feed:  &recordingFeed{},
		store: testutil.NewMemoryStore(),
	}
	f.users = NewUserService(userRepo, repository.NewProfileRepository(db), f.mail, manager, UserServiceConfig{
		Secret:         "test-secret-test-secret-test-secret",
		BaseURL:        "http://blog.test",
		ActivationDays: 7,
	}, nil)
	f.posts = NewPostService(postRepo, tagRepo, userRepo, commentRepo, NewImageService(f.store, 1), f.feed, time.UTC)
	f.tags = NewTagService(tagRepo)
	f.comments = NewCommentService(commentRepo, userRepo, f.posts, manager, f.feed)
	return f
}

func actorOf(u *models.User, method string) permissions.Requester {
	return permissions.Requester{ID: u.ID, IsStaff: u.IsStaff, IsSuperuser: u.IsSuperuser, Method: method}
}

func strp(s string) *string { return &s }

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if !models.IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func fieldErrors(t *testing.T, err error) map[string][]string {
	t.Helper()
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *models.AppError, got %v", err)
	}
	return appErr.Fields
}
