package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"blango/internal/filters"
	"blango/internal/models"
	"blango/internal/observability"
	"blango/internal/permissions"
	"blango/internal/repository"
	"blango/internal/serializers"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel/attribute"
)

// MsgAuthorSelf is returned when a non-staff user names someone else as author.
const MsgAuthorSelf = "You may only set yourself as the author."

// RecentPostsLimit is how many posts the "recent posts" sidebar shows.
const RecentPostsLimit = 5

// CommentPublisher fans new comments out to live subscribers.
type CommentPublisher interface {
	PublishComment(ctx context.Context, postID uint, comment *models.Comment)
}

type PostService struct {
	postRepo    repository.PostRepository
	tagRepo     repository.TagRepository
	userRepo    repository.UserRepository
	commentRepo repository.CommentRepository
	images      *ImageService
	feed        CommentPublisher
	loc         *time.Location
	now         func() time.Time
}

type ListPostsInput struct {
	Actor    permissions.Requester
	Filter   filters.PostFilter
	Ordering string
	Page     filters.Page
	// Period is a time window name: new, today or week.
	Period string
	// Mine limits the listing to the actor's own posts, drafts included.
	Mine bool
	// TagID limits the listing to posts carrying the tag.
	TagID uint
	// PublishedOnly hides drafts and scheduled posts even from their authors.
	PublishedOnly bool
}

func NewPostService(
	postRepo repository.PostRepository,
	tagRepo repository.TagRepository,
	userRepo repository.UserRepository,
	commentRepo repository.CommentRepository,
	images *ImageService,
	feed CommentPublisher,
	loc *time.Location,
) *PostService {
	if loc == nil {
		loc = time.UTC
	}
	return &PostService{
		postRepo:    postRepo,
		tagRepo:     tagRepo,
		userRepo:    userRepo,
		commentRepo: commentRepo,
		images:      images,
		feed:        feed,
		loc:         loc,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func viewerOf(actor permissions.Requester) filters.Viewer {
	return filters.Viewer{ID: actor.ID, IsStaff: actor.IsStaff}
}

// List returns one page of posts visible to the actor.
func (s *PostService) List(ctx context.Context, in ListPostsInput) ([]models.Post, int64, error) {
	ctx, end := observability.StartSpan(ctx, "PostService.List",
		attribute.String("period", in.Period), attribute.Bool("mine", in.Mine))
	var err error
	defer func() { end(err) }()

	now := s.now()
	q := repository.PostQuery{
		Viewer:   viewerOf(in.Actor),
		Now:      now,
		Filter:   in.Filter,
		Ordering: in.Ordering,
		Page:     in.Page,
	}

	if in.Period != "" {
		var window sq.Sqlizer
		if window, err = filters.Window(in.Period, now, s.loc); err != nil {
			return nil, 0, err
		}
		q.Extra = append(q.Extra, window)
	}
	if in.Mine {
		if !in.Actor.Authenticated() {
			err = models.NewNotAuthenticatedError()
			return nil, 0, err
		}
		q.Extra = append(q.Extra, sq.Eq{"posts.author_id": in.Actor.ID})
	}
	if in.TagID != 0 {
		if _, err = s.tagRepo.GetByID(ctx, in.TagID); err != nil {
			return nil, 0, err
		}
		q.Extra = append(q.Extra, sq.Expr("posts.id IN (SELECT post_id FROM post_tags WHERE tag_id = ?)", in.TagID))
	}
	if in.PublishedOnly {
		q.Viewer = filters.Viewer{}
		q.Extra = append(q.Extra, filters.Published(now))
	}

	posts, total, err := s.postRepo.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	if in.Page.Beyond(total) {
		err = models.NewNotFoundMessage("Invalid page.")
		return nil, 0, err
	}
	return posts, total, nil
}

func (s *PostService) visible(actor permissions.Requester, post *models.Post) bool {
	return actor.IsStaff || post.IsPublished(s.now()) || (actor.Authenticated() && post.AuthorID == actor.ID)
}

// Get loads a post with tags and comments. Posts the actor may not see are
// reported as missing.
func (s *PostService) Get(ctx context.Context, actor permissions.Requester, id uint) (*models.Post, error) {
	post, err := s.postRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.visible(actor, post) {
		return nil, models.NewNotFoundError("Post", id)
	}
	return post, nil
}

// GetBySlug is Get for the HTML pages.
func (s *PostService) GetBySlug(ctx context.Context, actor permissions.Requester, slug string) (*models.Post, error) {
	post, err := s.postRepo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !s.visible(actor, post) {
		return nil, models.NewNotFoundError("Post", slug)
	}
	return post, nil
}

// Recent returns the newest published posts other than excludeID.
func (s *PostService) Recent(ctx context.Context, excludeID uint) ([]models.Post, error) {
	return s.postRepo.Recent(ctx, excludeID, RecentPostsLimit, s.now())
}

// resolveAuthor maps the author field to a user ID. Omitted means fallback.
func (s *PostService) resolveAuthor(ctx context.Context, actor permissions.Requester, ref *string, fallback uint) (uint, error) {
	if ref == nil {
		return fallback, nil
	}
	email, ok := serializers.AuthorEmail(*ref)
	if !ok {
		return 0, models.NewFieldError("author", serializers.MsgInvalidHyperlink)
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return 0, models.NewFieldError("author", serializers.MsgInvalidHyperlink)
		}
		return 0, err
	}
	if user.ID != actor.ID && !actor.IsStaff {
		return 0, models.NewFieldError("author", MsgAuthorSelf)
	}
	return user.ID, nil
}

// Create stores a new post. Tags are fetched or created by value and any
// comment entries are added with the actor as creator.
func (s *PostService) Create(ctx context.Context, actor permissions.Requester, in *serializers.PostInput) (*models.Post, error) {
	actor.Method = http.MethodPost
	if err := permissions.Check(permissions.PostRule, actor, nil); err != nil {
		return nil, err
	}
	if err := in.Validate(false, true); err != nil {
		return nil, err
	}

	post := &models.Post{}
	if err := s.applyInput(ctx, actor, in, post); err != nil {
		return nil, err
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	if err := s.addComments(ctx, actor, post.ID, in.Comments); err != nil {
		return nil, err
	}
	return s.postRepo.GetByID(ctx, post.ID)
}

// Update changes a post. With partial set, omitted fields keep their values.
// Comment entries with an id are left untouched; entries without one are created.
func (s *PostService) Update(ctx context.Context, actor permissions.Requester, id uint, in *serializers.PostInput, partial bool) (*models.Post, error) {
	actor.Method = http.MethodPut
	if partial {
		actor.Method = http.MethodPatch
	}
	post, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := permissions.Check(permissions.PostRule, actor, post); err != nil {
		return nil, err
	}
	if err := in.Validate(partial, false); err != nil {
		return nil, err
	}

	if err := s.applyInput(ctx, actor, in, post); err != nil {
		return nil, err
	}
	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, err
	}
	if err := s.addComments(ctx, actor, post.ID, in.Comments); err != nil {
		return nil, err
	}
	return s.postRepo.GetByID(ctx, post.ID)
}

// applyInput resolves lookups and copies in onto post. An omitted author keeps
// the current one, or the actor for a new post.
func (s *PostService) applyInput(ctx context.Context, actor permissions.Requester, in *serializers.PostInput, post *models.Post) error {
	errs := models.FieldErrors{}

	fallback := post.AuthorID
	if fallback == 0 {
		fallback = actor.ID
	}
	authorID, err := s.resolveAuthor(ctx, actor, in.Author, fallback)
	if err != nil {
		var appErr *models.AppError
		if !errors.As(err, &appErr) || appErr.Code != models.CodeValidation {
			return err
		}
		errs.Merge(appErr.Fields)
	}

	if in.Slug != nil {
		taken, err := s.postRepo.SlugExists(ctx, *in.Slug, post.ID)
		if err != nil {
			return err
		}
		if taken {
			errs.Add("slug", repository.MsgSlugTaken)
		}
	}
	if err := errs.Err(); err != nil {
		return err
	}

	if in.Tags != nil {
		tags, err := s.tagRepo.Resolve(ctx, *in.Tags)
		if err != nil {
			return err
		}
		post.Tags = tags
	}
	in.Apply(post)
	post.AuthorID = authorID
	return nil
}

func (s *PostService) addComments(ctx context.Context, actor permissions.Requester, postID uint, entries *[]serializers.CommentInput) error {
	if entries == nil {
		return nil
	}
	for _, entry := range *entries {
		if entry.ID != nil {
			continue
		}
		comment := &models.Comment{
			CreatorID:  actor.ID,
			Content:    strings.TrimSpace(entry.Content),
			ObjectType: models.CommentTargetPost,
			ObjectID:   postID,
		}
		if err := s.commentRepo.Create(ctx, comment); err != nil {
			return err
		}
		if s.feed != nil {
			s.feed.PublishComment(ctx, postID, comment)
		}
	}
	return nil
}

// Delete removes a post and its comments.
func (s *PostService) Delete(ctx context.Context, actor permissions.Requester, id uint) error {
	actor.Method = http.MethodDelete
	post, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := permissions.Check(permissions.PostRule, actor, post); err != nil {
		return err
	}
	if err := s.postRepo.Delete(ctx, id); err != nil {
		return err
	}
	if s.images != nil {
		s.images.RemoveHero(ctx, post.HeroImage)
	}
	return nil
}

// SetHeroImage replaces the hero image and, when ppoi is non-nil, the point of interest.
func (s *PostService) SetHeroImage(ctx context.Context, actor permissions.Requester, id uint, upload UploadImageInput, ppoi *string) (*models.Post, error) {
	actor.Method = http.MethodPut
	post, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := permissions.Check(permissions.PostRule, actor, post); err != nil {
		return nil, err
	}

	x, y, err := models.ParsePPOI(post.PPOI)
	if err != nil {
		x, y = 0.5, 0.5
	}
	if ppoi != nil {
		if x, y, err = models.ParsePPOI(*ppoi); err != nil {
			return nil, models.NewFieldError("ppoi", serializers.MsgPPOI)
		}
	}

	base, err := s.images.StoreHero(ctx, post.ID, upload, x, y)
	if err != nil {
		return nil, err
	}
	if err := s.postRepo.UpdateHeroImage(ctx, post.ID, base, models.FormatPPOI(x, y)); err != nil {
		s.images.RemoveHero(ctx, base)
		return nil, err
	}
	s.images.RemoveHero(ctx, post.HeroImage)
	return s.postRepo.GetByID(ctx, post.ID)
}
