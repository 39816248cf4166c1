package wal

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-xv6fs/bcache"
	"github.com/mit-pdos/go-xv6fs/common"
	"github.com/mit-pdos/go-xv6fs/util/crash_disk"
)

const (
	dev      uint64      = common.ROOTDEV
	logStart common.Bnum = common.LOGSTART
	dataBlk  common.Bnum = 100
)

type WalSuite struct {
	suite.Suite
	mem disk.Disk
	d   *crash_disk.Disk
	bc  *bcache.Bcache
	l   *Log
}

func (suite *WalSuite) SetupTest() {
	suite.mem = disk.NewMemDisk(200)
	suite.d = crash_disk.New(suite.mem)
	suite.bc = bcache.MkBcache(common.NBUF)
	suite.bc.AddDevice(dev, suite.d)
	suite.l = MkLog(suite.bc, dev, logStart, common.LOGBLOCKS)
}

// restart drops all in-memory state and opens the log again on the
// blocks that reached the device.
func (suite *WalSuite) restart() {
	suite.d = crash_disk.New(suite.mem)
	suite.bc = bcache.MkBcache(common.NBUF)
	suite.bc.AddDevice(dev, suite.d)
	suite.l = MkLog(suite.bc, dev, logStart, common.LOGBLOCKS)
}

func (suite *WalSuite) write(bn common.Bnum, v byte) {
	b := suite.bc.Read(dev, bn)
	b.Data[0] = v
	suite.l.Write(b)
	suite.bc.Release(b)
}

func (suite *WalSuite) diskVal(bn common.Bnum) byte {
	return suite.mem.Read(bn)[0]
}

func (suite *WalSuite) diskHdrCount() uint64 {
	return decodeHdr(suite.mem.Read(logStart)).n
}

func TestWal(t *testing.T) {
	suite.Run(t, new(WalSuite))
}

func (suite *WalSuite) TestCommitInstalls() {
	suite.l.Begin()
	for i := uint64(0); i < 3; i++ {
		suite.write(dataBlk+i, byte(i+1))
	}
	suite.l.End()
	for i := uint64(0); i < 3; i++ {
		suite.Equal(byte(i+1), suite.diskVal(dataBlk+i))
	}
	suite.Equal(uint64(0), suite.diskHdrCount())
	suite.Equal(uint64(1), suite.l.Stats().Commits)
	suite.Equal(uint64(3), suite.l.Stats().BlocksCommitted)
}

func (suite *WalSuite) TestNotInstalledBeforeEnd() {
	suite.l.Begin()
	suite.write(dataBlk, 9)
	suite.Equal(byte(0), suite.diskVal(dataBlk))
	suite.l.End()
	suite.Equal(byte(9), suite.diskVal(dataBlk))
}

func (suite *WalSuite) TestAbsorb() {
	suite.l.Begin()
	for i := 0; i < 5; i++ {
		suite.write(dataBlk, byte(i))
	}
	suite.Equal(uint64(1), suite.l.lh.n, "repeated writes use one slot")
	suite.Equal(uint64(4), suite.l.Stats().Absorbed)
	suite.l.End()
	suite.Equal(byte(4), suite.diskVal(dataBlk))
	suite.Equal(uint64(1), suite.l.Stats().BlocksCommitted)
}

func (suite *WalSuite) TestEmptyCommit() {
	suite.l.Begin()
	suite.l.End()
	suite.Equal(uint64(0), suite.l.Stats().Commits)
}

func (suite *WalSuite) TestCrashAfterCommitPoint() {
	const k = 3
	// log body writes plus the header
	suite.d.CrashAfter(k + 1)
	suite.l.Begin()
	for i := uint64(0); i < k; i++ {
		suite.write(dataBlk+i, 7)
	}
	suite.l.End()
	suite.True(suite.d.Crashed())
	suite.Equal(uint64(k), suite.diskHdrCount())
	suite.Equal(byte(0), suite.diskVal(dataBlk), "not installed yet")

	suite.restart()
	for i := uint64(0); i < k; i++ {
		suite.Equal(byte(7), suite.diskVal(dataBlk+i))
	}
	suite.Equal(uint64(0), suite.diskHdrCount())
}

func (suite *WalSuite) TestCrashBeforeCommitPoint() {
	const k = 3
	suite.d.CrashAfter(k)
	suite.l.Begin()
	for i := uint64(0); i < k; i++ {
		suite.write(dataBlk+i, 7)
	}
	suite.l.End()
	suite.True(suite.d.Crashed())

	suite.restart()
	for i := uint64(0); i < k; i++ {
		suite.Equal(byte(0), suite.diskVal(dataBlk+i))
	}
}

func (suite *WalSuite) TestCrashDuringRecovery() {
	const k = 4
	suite.d.CrashAfter(k + 1)
	suite.l.Begin()
	for i := uint64(0); i < k; i++ {
		suite.write(dataBlk+i, 5)
	}
	suite.l.End()

	// recovery itself crashes after installing one block
	d := crash_disk.New(suite.mem)
	d.CrashAfter(1)
	bc := bcache.MkBcache(common.NBUF)
	bc.AddDevice(dev, d)
	MkLog(bc, dev, logStart, common.LOGBLOCKS)
	suite.True(d.Crashed())
	suite.Equal(byte(5), suite.diskVal(dataBlk))
	suite.Equal(byte(0), suite.diskVal(dataBlk+1))

	suite.restart()
	for i := uint64(0); i < k; i++ {
		suite.Equal(byte(5), suite.diskVal(dataBlk+i))
	}
}

func (suite *WalSuite) TestRecoverIdempotent() {
	suite.d.CrashAfter(2)
	suite.l.Begin()
	suite.write(dataBlk, 3)
	suite.l.End()
	suite.Equal(uint64(1), suite.diskHdrCount())

	suite.restart()
	suite.Equal(byte(3), suite.diskVal(dataBlk))
	suite.l.Recover()
	suite.Equal(byte(3), suite.diskVal(dataBlk))
	suite.Equal(uint64(0), suite.diskHdrCount())
}

func (suite *WalSuite) TestWriteOutsideOp() {
	b := suite.bc.Read(dev, dataBlk)
	suite.PanicsWithValue("log_write outside of trans", func() {
		suite.l.Write(b)
	})
	suite.bc.Release(b)
}

func (suite *WalSuite) TestTooBig() {
	suite.l.Begin()
	for i := uint64(0); i < suite.l.Capacity(); i++ {
		suite.write(dataBlk+i, 1)
	}
	b := suite.bc.Read(dev, dataBlk+suite.l.Capacity())
	suite.PanicsWithValue("too big a transaction", func() {
		suite.l.Write(b)
	})
}

func (suite *WalSuite) TestAbsorbWhenFull() {
	nops := suite.l.Capacity() / common.MAXOPBLOCKS
	for i := uint64(0); i < nops; i++ {
		suite.l.Begin()
	}
	n := nops * common.MAXOPBLOCKS
	for i := uint64(0); i < n; i++ {
		suite.write(dataBlk+i, 1)
	}
	suite.Equal(n, suite.l.lh.n)
	suite.NotPanics(func() { suite.write(dataBlk, 2) })
	suite.Equal(n, suite.l.lh.n, "absorbed write takes no slot")
	for i := uint64(0); i < nops; i++ {
		suite.l.End()
	}
	suite.Equal(byte(2), suite.diskVal(dataBlk))
	suite.Equal(byte(1), suite.diskVal(dataBlk+n-1))
}

func (suite *WalSuite) TestEndWithoutBegin() {
	suite.Panics(func() { suite.l.End() })
}

func (suite *WalSuite) TestAdmission() {
	// the log reserves MAXOPBLOCKS per operation
	nadmit := suite.l.Capacity() / common.MAXOPBLOCKS
	for i := uint64(0); i < nadmit; i++ {
		suite.l.Begin()
	}
	admitted := make(chan bool)
	go func() {
		suite.l.Begin()
		admitted <- true
	}()
	select {
	case <-admitted:
		suite.Fail("admitted beyond log capacity")
	case <-time.After(50 * time.Millisecond):
	}
	suite.l.End()
	suite.True(<-admitted)
	suite.GreaterOrEqual(suite.l.Stats().Waits, uint64(1))
	for i := uint64(0); i < nadmit; i++ {
		suite.l.End()
	}
}

func (suite *WalSuite) TestGroupCommit() {
	const nthread = 8
	const niter = 50
	var wg sync.WaitGroup
	for t := uint64(0); t < nthread; t++ {
		wg.Add(1)
		go func(t uint64) {
			defer wg.Done()
			for i := 0; i < niter; i++ {
				suite.l.Begin()
				suite.write(dataBlk+t, byte(i+1))
				suite.l.End()
			}
		}(t)
	}
	wg.Wait()
	for t := uint64(0); t < nthread; t++ {
		suite.Equal(byte(niter), suite.diskVal(dataBlk+t))
	}
	st := suite.l.Stats()
	suite.Equal(uint64(nthread*niter), st.Begins)
	suite.LessOrEqual(st.Commits, st.Begins)
	suite.Equal(uint64(0), suite.diskHdrCount())
}

func (suite *WalSuite) TestHeaderCodec() {
	h := &hdr{n: 2, addrs: []common.Bnum{40, 41, 0}}
	h2 := decodeHdr(encodeHdr(h))
	suite.Equal(uint64(2), h2.n)
	suite.Equal([]common.Bnum{40, 41}, h2.addrs)

	blk := make([]byte, common.BSIZE)
	for i := range blk[:8] {
		blk[i] = 0xff
	}
	suite.Equal(uint64(0), decodeHdr(blk).n, "garbage count is ignored")
}

func (suite *WalSuite) TestTooSmall() {
	suite.Panics(func() {
		mkLog(suite.bc, dev, logStart, common.MAXOPBLOCKS)
	})
}
