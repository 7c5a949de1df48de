package repository

import (
	"testing"

	"github.com/liliang-cn/askdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchQuery(t *testing.T) {
	tests := map[string]string{
		"What is the overdraft fee?":    `"what" OR "is" OR "the" OR "overdraft" OR "fee"`,
		`fee" OR x NEAR(y)`:             `"fee" OR "or" OR "near"`,
		"Fee fee FEE":                   `"fee"`,
		"Crédit à la consommation 2024": `"crédit" OR "la" OR "consommation" OR "2024"`,
		"?!":                            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, MatchQuery(in), in)
	}
}

func TestChunkRepository_SearchIsScoped(t *testing.T) {
	db := newTestDB(t)
	projects := NewProjectRepository(db)
	files := NewFileRepository(db)
	chunks := NewChunkRepository(db)

	newFile := func(userID, name string) (*domain.Project, *domain.ProjectFile) {
		p := &domain.Project{Name: name, UserID: userID}
		require.NoError(t, projects.Create(p))
		f := &domain.ProjectFile{Filename: name, OriginalName: name, FilePath: "/x/" + name,
			FileSize: 1, ProjectID: p.ID, UserID: userID}
		require.NoError(t, files.Create(f))
		return p, f
	}

	p1, fees := newFile("u1", "fees.txt")
	p2, loans := newFile("u1", "loans.txt")
	_, other := newFile("u2", "other.txt")

	require.NoError(t, chunks.Index(fees, []string{
		"The overdraft fee is 25 dollars.",
		"Wire transfers cost 15 dollars.",
	}))
	require.NoError(t, chunks.Index(loans, []string{"Loan fee schedules are reviewed yearly."}))
	require.NoError(t, chunks.Index(other, []string{"Overdraft fee for business accounts."}))

	hits, err := chunks.Search("u1", p1.ID, "overdraft fee", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "The overdraft fee is 25 dollars.", hits[0].Content)
	assert.Equal(t, fees.ID, hits[0].FileID)
	assert.Equal(t, "fees.txt", hits[0].Filename)
	assert.Greater(t, hits[0].Score, 0.0)

	all, err := chunks.Search("u1", "", "overdraft fee", 5)
	require.NoError(t, err)
	require.Len(t, all, 2, "every project of the user, none of other users")
	assert.Equal(t, fees.ID, all[0].FileID, "the passage matching both words ranks first")

	none, err := chunks.Search("u1", "", "??", 5)
	require.NoError(t, err)
	assert.Empty(t, none)

	// re-indexing replaces the passages
	require.NoError(t, chunks.Index(fees, []string{"Fees were removed."}))
	n, err := chunks.Count(fees.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, projects.Delete(p2.ID, "u1"))
	n, err = chunks.Count(loans.ID)
	require.NoError(t, err)
	assert.Zero(t, n, "passages go with their project")
}
