package users

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"jobportal/internal/auth"
	"jobportal/internal/database"
	"jobportal/internal/errcode"
)

var (
	ErrDuplicateEmail = errcode.Invalid("Validation failed due to existing user.")
	ErrUserNotFound   = errcode.Missing("User not found.")
	ErrImageNotFound  = errcode.Missing("Image not found.")
)

// Store 负责账号记录的持久化，邮箱在写入时保证唯一（不区分大小写）。
//
// Image list changes load the row, modify the list and write the column back
// without locking: two concurrent appends for the same user can lose one.
type Store struct {
	db *gorm.DB
}

// NewStore returns a Store backed by db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// NewUser carries the fields needed to create an account.
type NewUser struct {
	FullName     string
	Email        string
	PasswordHash string
	Role         auth.Role
}

// Changes lists optional profile edits; nil fields are left untouched.
type Changes struct {
	FullName         *string
	PasswordHash     *string
	ProfileImagePath *string
}

// Create inserts a new account or returns ErrDuplicateEmail.
func (s *Store) Create(ctx context.Context, in NewUser) (database.User, error) {
	email := NormalizeEmail(in.Email)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&database.User{}).
		Where("email = ?", email).
		Count(&count).Error; err != nil {
		return database.User{}, fmt.Errorf("count users by email: %w", err)
	}
	if count > 0 {
		return database.User{}, ErrDuplicateEmail
	}

	user := database.User{
		FullName:     strings.TrimSpace(in.FullName),
		Email:        email,
		PasswordHash: in.PasswordHash,
		Role:         string(in.Role),
		Images:       datatypes.JSONSlice[database.Image]{},
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		// lost the race against a concurrent registration
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return database.User{}, ErrDuplicateEmail
		}
		return database.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// FindByEmail returns the account for email or ErrUserNotFound.
func (s *Store) FindByEmail(ctx context.Context, email string) (database.User, error) {
	return findByEmail(s.db.WithContext(ctx), email)
}

func findByEmail(db *gorm.DB, email string) (database.User, error) {
	var user database.User
	if err := db.Where("email = ?", NormalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.User{}, ErrUserNotFound
		}
		return database.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// Update applies changes to the account identified by email.
func (s *Store) Update(ctx context.Context, email string, changes Changes) (database.User, error) {
	var user database.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = findByEmail(tx, email)
		if err != nil {
			return err
		}

		updates := map[string]any{}
		if changes.FullName != nil {
			updates["full_name"] = strings.TrimSpace(*changes.FullName)
		}
		if changes.PasswordHash != nil {
			updates["password_hash"] = *changes.PasswordHash
		}
		if changes.ProfileImagePath != nil {
			updates["image_path"] = *changes.ProfileImagePath
		}
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		return tx.First(&user, user.ID).Error
	})
	if err != nil {
		return database.User{}, err
	}
	return user, nil
}

// Delete removes the account and returns it so the caller can purge its images.
func (s *Store) Delete(ctx context.Context, email string) (database.User, error) {
	var user database.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = findByEmail(tx, email)
		if err != nil {
			return err
		}
		if err := tx.Delete(&database.User{}, user.ID).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return database.User{}, err
	}
	return user, nil
}

// List returns every account, oldest first.
func (s *Store) List(ctx context.Context) ([]database.User, error) {
	var users []database.User
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// ListWithImages returns the accounts that have at least one image.
func (s *Store) ListWithImages(ctx context.Context) ([]database.User, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	withImages := make([]database.User, 0, len(all))
	for _, u := range all {
		if len(u.Images) > 0 {
			withImages = append(withImages, u)
		}
	}
	return withImages, nil
}

// AppendImage adds img to the owner's list and returns the new count.
func (s *Store) AppendImage(ctx context.Context, email string, img database.Image) (int, error) {
	var count int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := findByEmail(tx, email)
		if err != nil {
			return err
		}
		images := append(slices.Clone([]database.Image(user.Images)), img)
		if err := tx.Model(&user).Update("images", datatypes.JSONSlice[database.Image](images)).Error; err != nil {
			return fmt.Errorf("append image: %w", err)
		}
		count = len(images)
		return nil
	})
	return count, err
}

// RemoveImage drops the entry whose path is storedPath and returns the remaining count.
func (s *Store) RemoveImage(ctx context.Context, email, storedPath string) (int, error) {
	var remaining int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := findByEmail(tx, email)
		if err != nil {
			return err
		}
		idx := slices.IndexFunc(user.Images, func(img database.Image) bool { return img.Path == storedPath })
		if idx < 0 {
			return ErrImageNotFound
		}
		images := slices.Delete(slices.Clone([]database.Image(user.Images)), idx, idx+1)
		if err := tx.Model(&user).Update("images", datatypes.JSONSlice[database.Image](images)).Error; err != nil {
			return fmt.Errorf("remove image: %w", err)
		}
		remaining = len(images)
		return nil
	})
	return remaining, err
}

// ImageInUse reports whether any account still lists storedPath.
func (s *Store) ImageInUse(ctx context.Context, storedPath string) (bool, error) {
	owners, err := s.ListWithImages(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range owners {
		if slices.ContainsFunc(u.Images, func(img database.Image) bool { return img.Path == storedPath }) {
			return true, nil
		}
	}
	return false, nil
}
