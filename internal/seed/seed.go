package seed

import (
	"fmt"
	"log/slog"

	"momoland/internal/models"

	"gorm.io/gorm"
)

// Run populates the database with a small, connected dataset: users that
// follow each other, active and expired stories, a few chat rooms with
// message history, and some feed posts with comments.
func Run(db *gorm.DB, userCount int) error {
	if userCount < 3 {
		userCount = 3
	}
	f := NewFactory(db)

	users := make([]*userHandle, 0, userCount)
	for i := 0; i < userCount; i++ {
		u, err := f.CreateUser()
		if err != nil {
			return fmt.Errorf("seed user: %w", err)
		}
		users = append(users, &userHandle{user: u})
	}
	slog.Info("seeded users", "count", len(users))

	// Each user follows a handful of others so story feeds are non-empty.
	for i, h := range users {
		for j := 1; j <= 3; j++ {
			target := users[(i+j)%len(users)]
			if target == h {
				continue
			}
			if err := f.Follow(h.user, target.user); err != nil {
				return fmt.Errorf("seed follow: %w", err)
			}
		}
	}

	storyCount := 0
	for _, h := range users {
		n := f.rand.Intn(4)
		for j := 0; j < n; j++ {
			story, err := f.CreateStory(h.user)
			if err != nil {
				return fmt.Errorf("seed story: %w", err)
			}
			storyCount++
			// A couple of followers have already seen it.
			for k := 1; k <= f.rand.Intn(3); k++ {
				viewer := users[(storyCount+k)%len(users)]
				if viewer.user.ID == h.user.ID {
					continue
				}
				if err := f.CreateStoryView(story, viewer.user); err != nil {
					return fmt.Errorf("seed story view: %w", err)
				}
			}
		}
	}
	slog.Info("seeded stories", "count", storyCount)

	roomCount := 3
	if userCount > 20 {
		roomCount = userCount / 5
	}
	for i := 0; i < roomCount; i++ {
		creator := users[i%len(users)]
		room, err := f.CreateRoom(creator.user)
		if err != nil {
			return fmt.Errorf("seed room: %w", err)
		}
		memberCount := 2 + f.rand.Intn(5)
		members := []*userHandle{creator}
		for j := 1; j <= memberCount && j < len(users); j++ {
			member := users[(i+j)%len(users)]
			if member == creator {
				continue
			}
			if err := f.AddRoomMember(room, member.user, f.rand.Intn(2) == 0); err != nil {
				return fmt.Errorf("seed room member: %w", err)
			}
			members = append(members, member)
		}
		for j := 0; j < 5+f.rand.Intn(15); j++ {
			sender := members[f.rand.Intn(len(members))]
			if _, err := f.CreateRoomMessage(room, sender.user); err != nil {
				return fmt.Errorf("seed room message: %w", err)
			}
		}
	}
	slog.Info("seeded rooms", "count", roomCount)

	postCount := 0
	for _, h := range users {
		if f.rand.Intn(2) == 0 {
			continue
		}
		post, err := f.CreatePost(h.user)
		if err != nil {
			return fmt.Errorf("seed post: %w", err)
		}
		postCount++
		for j := 0; j < f.rand.Intn(4); j++ {
			commenter := users[f.rand.Intn(len(users))]
			if _, err := f.CreateComment(post, commenter.user); err != nil {
				return fmt.Errorf("seed comment: %w", err)
			}
		}
	}
	slog.Info("seeded posts", "count", postCount)

	return nil
}

type userHandle struct {
	user *models.User
}
