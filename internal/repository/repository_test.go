package repository

import (
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GetWithRelations left-joins users onto conversations; when nobody is
// assigned those columns come back NULL. pgx refuses to scan NULL into a
// plain string, so the scan targets for joined user columns must be pointers.
func TestLeftJoinedUserColumnsNeedPointerTargets(t *testing.T) {
	m := pgtype.NewMap()

	var direct string
	err := m.Scan(pgtype.TextOID, pgtype.TextFormatCode, nil, &direct)
	require.Error(t, err, "NULL into plain string must fail")

	var viaPointer *string
	err = m.Scan(pgtype.TextOID, pgtype.TextFormatCode, nil, &viaPointer)
	require.NoError(t, err)
	assert.Nil(t, viaPointer)

	err = m.Scan(pgtype.TextOID, pgtype.TextFormatCode, []byte("agent"), &viaPointer)
	require.NoError(t, err)
	require.NotNil(t, viaPointer)
	assert.Equal(t, "agent", *viaPointer)
}
