package receipt

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	newBatch := func(id string, started time.Time) *BatchResult {
		return &BatchResult{
			ID:         id,
			StartedAt:  started,
			FinishedAt: started.Add(time.Minute),
			Documents:  2,
			Records: []Record{{
				SellerName:  Known("Corner Cafe"),
				IssueDate:   Field{Value: "Mon", Known: true, LowConfidence: true},
				TotalAmount: Known("1280"),
				Items:       []Item{{Name: "Latte", Amount: "480"}},
				Provenance:  Provenance{DocumentID: "a.pdf", Page: 1},
			}},
			Failures: []Failure{{DocumentID: "b.jpg", Page: -1, Kind: KindTimeout, Message: "timed out"}},
			Attempts: []Attempt{{DocumentID: "a.pdf", Strategy: StrategyVision, Page: 1, Units: 1, Duration: time.Second}},
		}
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("SaveBatch", func() {
		var (
			batch *BatchResult
			err   error
		)

		BeforeEach(func() {
			batch = newBatch("batch-1", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
		})

		JustBeforeEach(func() {
			err = db.SaveBatch(batch)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should store the whole result", func() {
				saved, getErr := db.GetBatch("batch-1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved).To(Equal(batch))
			})
		})

		When("the batch has no id", func() {
			BeforeEach(func() {
				batch.ID = ""
			})

			It("should return an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})

		When("a batch with the same id exists", func() {
			BeforeEach(func() {
				Expect(db.SaveBatch(newBatch("batch-1", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
				batch.Cancelled = true
			})

			It("should replace it", func() {
				saved, getErr := db.GetBatch("batch-1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Cancelled).To(BeTrue())
				Expect(saved.StartedAt).To(Equal(batch.StartedAt))
			})
		})
	})

	Describe("GetBatch", func() {
		When("the batch does not exist", func() {
			It("should return ErrBatchNotFound", func() {
				_, err := db.GetBatch("missing")
				Expect(err).To(MatchError(ErrBatchNotFound))
			})
		})
	})

	Describe("ListBatches", func() {
		When("there are no batches", func() {
			It("should return an empty list", func() {
				summaries, err := db.ListBatches()
				Expect(err).NotTo(HaveOccurred())
				Expect(summaries).To(BeEmpty())
			})
		})

		When("there are batches", func() {
			BeforeEach(func() {
				Expect(db.SaveBatch(newBatch("old", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
				Expect(db.SaveBatch(newBatch("new", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
				Expect(db.SaveBatch(newBatch("mid", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))).To(Succeed())
			})

			It("should return summaries newest first", func() {
				summaries, err := db.ListBatches()
				Expect(err).NotTo(HaveOccurred())
				Expect(summaries).To(HaveLen(3))
				Expect(summaries[0].ID).To(Equal("new"))
				Expect(summaries[1].ID).To(Equal("mid"))
				Expect(summaries[2].ID).To(Equal("old"))
				Expect(summaries[0].Records).To(Equal(1))
				Expect(summaries[0].Failures).To(Equal(1))
				Expect(summaries[0].Documents).To(Equal(2))
			})
		})
	})

	Describe("DeleteBatch", func() {
		BeforeEach(func() {
			Expect(db.SaveBatch(newBatch("batch-1", time.Now().UTC()))).To(Succeed())
		})

		When("the batch exists", func() {
			It("should remove it", func() {
				Expect(db.DeleteBatch("batch-1")).To(Succeed())
				_, err := db.GetBatch("batch-1")
				Expect(err).To(MatchError(ErrBatchNotFound))
			})
		})

		When("the batch does not exist", func() {
			It("should return ErrBatchNotFound", func() {
				Expect(db.DeleteBatch("missing")).To(MatchError(ErrBatchNotFound))
			})
		})
	})

	Describe("persistence", func() {
		It("should keep batches across reopen", func() {
			Expect(db.SaveBatch(newBatch("batch-1", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())

			saved, err := db.GetBatch("batch-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Records[0].SellerName).To(Equal(Known("Corner Cafe")))
		})
	})
})
