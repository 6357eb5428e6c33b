package indices

import (
	"context"
	"encoding/json"

	"roster/client/es"

	"roster/domain"

	"github.com/fundwit/go-commons/types"
)

var SearchInviteByIdFunc = SearchInviteById

// SearchInviteById looks one invite up in the search index. A missing
// document is not an error: the result is nil and the caller falls back to
// the database.
func SearchInviteById(ctx context.Context, projectID, inviteID types.ID) (*domain.ProjectMemberInvite, error) {
	query := es.H{
		"query": es.H{
			"bool": es.H{
				"filter": []es.H{
					{"term": es.H{"projectId": projectID}},
					{"term": es.H{"id": inviteID}},
				},
			},
		},
	}

	result, err := es.SearchFunc(ctx, InviteIndexName, query)
	if err != nil {
		return nil, err
	}
	if len(result.Hits.Hits) == 0 {
		return nil, nil
	}

	invite := domain.ProjectMemberInvite{}
	if err := json.Unmarshal([]byte(result.Hits.Hits[0].Source), &invite); err != nil {
		return nil, err
	}
	return &invite, nil
}
