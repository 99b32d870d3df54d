package database

import (
	"context"
	"errors"
	"net/netip"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T, driver string) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return Wrap(conn, driver), mock
}

func TestRebind(t *testing.T) {
	pg := Wrap(nil, DriverPostgres)
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := Wrap(nil, DriverSQLite)
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestDeleteNetwork_NoRowsIsNotFound(t *testing.T) {
	db, mock := newMock(t, DriverSQLite)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM networks WHERE id = ?")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.DeleteNetwork(context.Background(), 7)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteNetwork_PostgresPlaceholders(t *testing.T) {
	db, mock := newMock(t, DriverPostgres)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM networks WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, db.DeleteNetwork(context.Background(), 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertIP_PropagatesDriverError(t *testing.T) {
	db, mock := newMock(t, DriverSQLite)
	mock.ExpectQuery("INSERT INTO ip_reservations").
		WithArgs("10.0.0.5", int64(1), "web").
		WillReturnError(errors.New("disk I/O error"))

	_, err := db.InsertIP(context.Background(), IPReservation{
		Addr: netip.MustParseAddr("10.0.0.5"), NetworkID: 1, Description: "web",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert ip reservation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNetworks_ScansRows(t *testing.T) {
	db, mock := newMock(t, DriverSQLite)
	rows := sqlmock.NewRows([]string{"id", "net_addr", "description", "switch_name", "is_hop", "dhcp_start", "dhcp_end"}).
		AddRow(int64(1), "10.0.0.0/24", "lab", "sw0", false, "", "").
		AddRow(int64(2), "10.1.0.0/24", "hop", "", true, "10.1.0.128", "10.1.0.254")
	mock.ExpectQuery("SELECT (.+) FROM networks ORDER BY id").WillReturnRows(rows)

	nets, err := db.ListNetworks(context.Background())
	require.NoError(t, err)
	require.Len(t, nets, 2)
	assert.Equal(t, "sw0", nets[0].Switch)
	assert.True(t, nets[1].IsHop)
	assert.Equal(t, netip.MustParseAddr("10.1.0.128"), nets[1].DHCPStart)
}

func TestListNetworks_BadPrefixFails(t *testing.T) {
	db, mock := newMock(t, DriverSQLite)
	rows := sqlmock.NewRows([]string{"id", "net_addr", "description", "switch_name", "is_hop", "dhcp_start", "dhcp_end"}).
		AddRow(int64(1), "not-a-cidr", "", "", false, "", "")
	mock.ExpectQuery("SELECT (.+) FROM networks").WillReturnRows(rows)

	_, err := db.ListNetworks(context.Background())
	assert.Error(t, err)
}
