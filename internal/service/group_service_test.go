package service

import (
	"testing"

	"Lee_Timeline/internal/config"
	"Lee_Timeline/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGroupService_Membership(t *testing.T) {
	f := newFixture(t, config.Features{})
	gs := NewGroupService(f.st)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	_, err := gs.CreateGroup(f.ctx, alice, "  ", "", true)
	require.ErrorIs(t, err, ErrValidationFailed)

	open, err := gs.CreateGroup(f.ctx, alice, "open", "", true)
	require.NoError(t, err)
	closed, err := gs.CreateGroup(f.ctx, alice, "closed", "", false)
	require.NoError(t, err)

	tests := []struct {
		name    string
		groupID string
		want    Outcome
	}{
		{"public", open.GroupID, Applied},
		{"public again", open.GroupID, AlreadyExists},
		{"private", closed.GroupID, Rejected},
		{"missing", uuid.NewString(), TargetNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := gs.JoinGroup(f.ctx, bob, tt.groupID)
			require.NoError(t, err)
			require.Equal(t, tt.want, out)
		})
	}

	g, err := gs.Group(f.ctx, bob, closed.GroupID)
	require.NoError(t, err)
	require.Nil(t, g)

	out, err := gs.AddMember(f.ctx, bob, closed.GroupID, "bob")
	require.NoError(t, err)
	require.Equal(t, Rejected, out)
	out, err = gs.AddMember(f.ctx, alice, closed.GroupID, "bob")
	require.NoError(t, err)
	require.Equal(t, Applied, out)

	g, err = gs.Group(f.ctx, bob, closed.GroupID)
	require.NoError(t, err)
	require.Equal(t, "closed", g.Name)

	out, err = gs.LeaveGroup(f.ctx, bob, closed.GroupID)
	require.NoError(t, err)
	require.Equal(t, Applied, out)
	out, err = gs.LeaveGroup(f.ctx, bob, closed.GroupID)
	require.NoError(t, err)
	require.Equal(t, TargetNotFound, out)

	list, err := gs.ListGroups(f.ctx, bob, 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestGroupService_Attachments(t *testing.T) {
	f := newFixture(t, config.Features{})
	gs := NewGroupService(f.st)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	stranger := &model.User{Username: "eve", Domain: "evil.org", Activated: true}
	require.NoError(t, f.st.Users.Create(f.ctx, stranger))

	_, err := gs.UploadAttachment(f.ctx, alice, "empty.txt", nil)
	require.ErrorIs(t, err, ErrValidationFailed)

	a, err := gs.UploadAttachment(f.ctx, alice, "notes.txt", []byte("hello"))
	require.NoError(t, err)
	require.EqualValues(t, 5, a.Size)

	st, err := f.updates.PostStatus(f.ctx, alice, PostInput{Content: "see attached", AttachmentIDs: []string{a.AttachmentID}})
	require.NoError(t, err)

	dto, err := f.timeline.GetStatus(f.ctx, bob, st.StatusID)
	require.NoError(t, err)
	require.Len(t, dto.Attachments, 1)
	require.Equal(t, "notes.txt", dto.Attachments[0].Filename)
	require.Empty(t, dto.Attachments[0].Content)

	got, err := gs.Attachment(f.ctx, bob, a.AttachmentID)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got.Content)

	got, err = gs.Attachment(f.ctx, stranger, a.AttachmentID)
	require.NoError(t, err)
	require.Nil(t, got)
}
