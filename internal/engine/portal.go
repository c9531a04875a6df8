package engine

import (
	"context"
	"errors"

	"staffline/internal/domain"
	"staffline/internal/repo"
	"staffline/internal/visibility"
)

// PortalMission is one of the client's missions with its proposed profiles.
type PortalMission struct {
	MissionID      string                `json:"mission_id"`
	Title          string                `json:"title"`
	Location       string                `json:"location,omitempty"`
	PipelineStatus domain.PipelineStatus `json:"pipeline_status"`
	Profiles       []visibility.View     `json:"profiles"`
}

// PortalView is everything a portal token may see.
type PortalView struct {
	ClientName string          `json:"client_name"`
	Missions   []PortalMission `json:"missions"`
}

func (e Engine) portalClient(ctx context.Context, token string) (domain.Client, error) {
	c, err := e.Repo.GetClientByPortalToken(ctx, token)
	if errors.Is(err, repo.ErrNotFound) {
		return c, ErrAccessDenied
	}
	return c, err
}

// Portal lists the token owner's missions that have proposed participants,
// newest proposal first. Profiles go through the visibility gate on every read.
func (e Engine) Portal(ctx context.Context, token string) (PortalView, error) {
	c, err := e.portalClient(ctx, token)
	if err != nil {
		return PortalView{}, err
	}
	view := PortalView{ClientName: c.Name, Missions: []PortalMission{}}
	parts, err := e.Repo.ProposedForClient(ctx, c.AgencyID, c.ID)
	if err != nil {
		return PortalView{}, err
	}
	if len(parts) == 0 {
		return view, nil
	}
	missions, err := e.Repo.ListMissions(ctx, c.AgencyID, c.ID)
	if err != nil {
		return PortalView{}, err
	}
	type entry struct {
		mission  domain.Mission
		pipeline domain.Pipeline
	}
	byPipeline := map[string]entry{}
	for _, m := range missions {
		pl, err := e.Repo.GetPipelineByMission(ctx, nil, c.AgencyID, m.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return PortalView{}, err
		}
		byPipeline[pl.ID] = entry{mission: m, pipeline: pl}
	}

	index := map[string]int{}
	for _, p := range parts {
		en, ok := byPipeline[p.PipelineID]
		if !ok {
			continue
		}
		cand, err := e.Repo.GetCandidate(ctx, nil, c.AgencyID, p.CandidateID)
		if err != nil {
			return PortalView{}, err
		}
		i, seen := index[en.mission.ID]
		if !seen {
			i = len(view.Missions)
			index[en.mission.ID] = i
			view.Missions = append(view.Missions, PortalMission{
				MissionID:      en.mission.ID,
				Title:          en.mission.Title,
				Location:       en.mission.Location,
				PipelineStatus: en.pipeline.Status,
			})
		}
		view.Missions[i].Profiles = append(view.Missions[i].Profiles, visibility.Project(p, cand, en.mission))
	}
	return view, nil
}

// PortalRespond records the client's decision on one of its own participants.
// Unknown tokens and participants of other clients are both access denied.
func (e Engine) PortalRespond(ctx context.Context, token, participantID string, validate bool, comment string) (visibility.View, error) {
	c, err := e.portalClient(ctx, token)
	if err != nil {
		return visibility.View{}, err
	}
	agencyID, clientID, err := e.Repo.ParticipantMissionClient(ctx, participantID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && (agencyID != c.AgencyID || clientID != c.ID)) {
		return visibility.View{}, ErrAccessDenied
	}
	if err != nil {
		return visibility.View{}, err
	}
	res, err := e.ClientRespond(ctx, c.AgencyID, participantID, Decision{Validate: validate, Comment: comment, Source: "portal"}, "client:"+c.ID)
	if err != nil {
		return visibility.View{}, err
	}
	cand, err := e.Repo.GetCandidate(ctx, nil, c.AgencyID, res.Participant.CandidateID)
	if err != nil {
		return visibility.View{}, err
	}
	m, err := e.Repo.GetMission(ctx, nil, c.AgencyID, res.Pipeline.MissionID)
	if err != nil {
		return visibility.View{}, err
	}
	return visibility.Project(res.Participant, cand, m), nil
}
