package api

import (
	"github.com/commitkings/commitkings/internal/database"
	"github.com/commitkings/commitkings/internal/relay"
	"github.com/commitkings/commitkings/internal/types"
)

func renderUser(u database.User) types.User {
	return types.User{
		Id:        u.ExternalId,
		Name:      u.Name,
		Email:     u.Email,
		OrgCode:   u.OrgCode,
		Role:      types.Role(u.Role),
		JobTitle:  u.JobTitle,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func renderParticipant(p database.Participant) types.User {
	return types.User{
		Id:       p.ExternalId,
		Name:     p.Name,
		Email:    p.Email,
		Role:     types.Role(p.Role),
		JobTitle: p.JobTitle,
	}
}

// renderPost masks the author of anonymous posts and comments. The
// stored author id never leaves the server for anonymous content.
func renderPost(p database.Post) types.Post {
	post := types.Post{
		Id:        p.ExternalId,
		Content:   p.Content,
		Type:      types.PostType(p.Type),
		Anonymous: p.Anonymous,
		AiToggle:  p.AiToggle,
		IsInsight: p.IsInsight,
		Tags:      p.Tags,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Reactions: make([]types.Reaction, 0, len(p.Reactions)),
		Comments:  make([]types.Comment, 0, len(p.Comments)),
		Reposts:   make([]types.Repost, 0, len(p.Reposts)),
	}

	if p.Anonymous {
		post.Author = types.AnonymousAuthor()
	} else {
		post.Author = types.Author{Id: p.AuthorExtId, Name: p.AuthorName}
	}

	for _, r := range p.Reactions {
		post.Reactions = append(post.Reactions, types.Reaction{
			Author:    types.Author{Id: r.AuthorExtId, Name: r.AuthorName},
			Emoji:     r.Emoji,
			CreatedAt: r.CreatedAt,
		})
	}

	for _, c := range p.Comments {
		comment := types.Comment{
			Id:        c.ExternalId,
			Text:      c.Text,
			Anonymous: c.Anonymous,
			CreatedAt: c.CreatedAt,
		}
		if c.Anonymous {
			comment.Author = types.AnonymousAuthor()
		} else {
			comment.Author = types.Author{Id: c.AuthorExtId, Name: c.AuthorName}
		}
		post.Comments = append(post.Comments, comment)
	}

	for _, r := range p.Reposts {
		post.Reposts = append(post.Reposts, types.Repost{
			Author:    types.Author{Id: r.AuthorExtId, Name: r.AuthorName},
			CreatedAt: r.CreatedAt,
		})
	}

	return post
}

func renderConversation(c database.Conversation) types.Conversation {
	conv := types.Conversation{
		Id:          c.ExternalId,
		Name:        c.Name,
		Description: c.Description,
		Type:        types.ConversationType(c.Type),
		CreatedBy:   c.CreatedByExtId.String,
		CreatedAt:   c.CreatedAt,
	}

	for _, p := range c.Participants {
		u := renderParticipant(p)
		conv.Participants = append(conv.Participants, u)
		if p.IsAdmin {
			conv.Admins = append(conv.Admins, u)
		}
		if p.IsReviewer {
			conv.Reviewers = append(conv.Reviewers, u)
		}
	}

	if c.LastMessageText.Valid {
		conv.LastMessage = &types.LastMessage{
			Text:      c.LastMessageText.String,
			CreatedAt: c.LastMessageAt.Time,
		}
	}

	return conv
}

func renderMessages(msgs []database.Message) []types.Message {
	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, relay.RenderMessage(m))
	}
	return out
}

func renderMeeting(m database.Meeting) types.Meeting {
	return types.Meeting{
		Id:           m.ExternalId,
		Title:        m.Title,
		ScheduledAt:  m.ScheduledAt,
		RecordingUrl: m.RecordingUrl,
		Transcript:   m.Transcript,
		InsightLines: m.InsightLines,
		Tags:         m.Tags,
	}
}

func renderInsight(i database.Insight) types.Insight {
	return types.Insight{
		Id:         i.ExternalId,
		SourceId:   i.SourceExtId,
		SourceType: types.InsightSource(i.SourceType),
		MarkedBy:   types.Author{Id: i.MarkerExtId, Name: i.MarkerName},
		Tags:       i.Tags,
		Content:    i.Content,
		AiSummary:  i.AiSummary,
		CreatedAt:  i.CreatedAt,
	}
}
