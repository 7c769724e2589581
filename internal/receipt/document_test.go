package receipt

import (
	"errors"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubCounter struct {
	pages int
	err   error
}

func (s stubCounter) PageCount(data []byte) (int, error) {
	return s.pages, s.err
}

var _ = Describe("Discover", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "discover-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)
	})

	It("lists supported files sorted by path", func() {
		writeFile(dir, "b.PDF", "%PDF")
		writeFile(dir, "a.jpg", "jpeg")
		writeFile(dir, "sub/c.heic", "heic")
		writeFile(dir, "notes.txt", "skip me")
		writeFile(dir, ".hidden.png", "skip me")
		writeFile(dir, ".cache/d.png", "skip me")

		docs, err := Discover(dir, stubCounter{pages: 3})
		Expect(err).NotTo(HaveOccurred())

		Expect(docs).To(HaveLen(3))
		Expect(docs[0].ID).To(Equal("a.jpg"))
		Expect(docs[0].MediaType).To(Equal("image/jpeg"))
		Expect(docs[0].PageCount).To(Equal(1))
		Expect(docs[1].ID).To(Equal("b.PDF"))
		Expect(docs[1].IsPDF()).To(BeTrue())
		Expect(docs[1].PageCount).To(Equal(3))
		Expect(docs[2].ID).To(Equal("sub/c.heic"))
		Expect(docs[2].Bytes()).To(Equal([]byte("heic")))
	})

	It("records zero pages for a pdf it cannot count", func() {
		writeFile(dir, "broken.pdf", "nope")

		docs, err := Discover(dir, stubCounter{err: errors.New("bad xref")})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs[0].PageCount).To(BeZero())
	})

	It("returns an empty list for an empty directory", func() {
		docs, err := Discover(dir, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(BeEmpty())
	})

	It("fails for a missing directory", func() {
		_, err := Discover(dir+"/missing", nil)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("UploadDocuments", func() {
	It("keeps upload order and makes names unique", func() {
		docs, err := UploadDocuments([]Upload{
			{Filename: "IMG 0001 (copy).JPG", Data: []byte("a")},
			{Filename: "../../etc/scan.pdf", Data: []byte("b")},
			{Filename: "IMG 0001 copy.jpg", Data: []byte("c")},
		}, stubCounter{pages: 2})
		Expect(err).NotTo(HaveOccurred())

		Expect(docs).To(HaveLen(3))
		Expect(docs[0].ID).To(Equal("IMG 0001 copy.jpg"))
		Expect(docs[1].ID).To(Equal("scan.pdf"))
		Expect(docs[1].PageCount).To(Equal(2))
		Expect(docs[2].ID).To(Equal("IMG 0001 copy_2.jpg"))
		Expect(docs[2].Bytes()).To(Equal([]byte("c")))
	})

	It("falls back to the content type when the name has no extension", func() {
		docs, err := UploadDocuments([]Upload{{Filename: "blob", ContentType: "image/jpg", Data: []byte("a")}}, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(docs[0].MediaType).To(Equal("image/jpeg"))
	})

	It("rejects unsupported files", func() {
		_, err := UploadDocuments([]Upload{{Filename: "notes.txt", ContentType: "text/plain"}}, nil)
		Expect(err).To(MatchError(ErrUnsupportedFile))
	})
})

var _ = Describe("sanitizeFilename", func() {
	DescribeTable("cleans names",
		func(in, expected string) {
			Expect(sanitizeFilename(in)).To(Equal(expected))
		},
		Entry("plain", "receipt.pdf", "receipt.pdf"),
		Entry("unsafe characters", "bill#1 (final)!.PNG", "bill1 final.png"),
		Entry("repeated spaces", "a   b.jpg", "a b.jpg"),
		Entry("directories", "x/y/z.jpg", "z.jpg"),
		Entry("nothing left", "!!!.jpg", "receipt.jpg"),
		Entry("chinese", "发票 2024.pdf", "发票 2024.pdf"),
	)
})

var _ = Describe("Config", func() {
	It("accepts the defaults", func() {
		Expect(DefaultConfig().Validate()).To(Succeed())
	})

	DescribeTable("rejects bad values",
		func(mutate func(*Config)) {
			cfg := DefaultConfig()
			mutate(&cfg)
			Expect(cfg.Validate()).NotTo(Succeed())
		},
		Entry("native pages", func(c *Config) { c.NativePages = "some" }),
		Entry("document concurrency", func(c *Config) { c.DocumentConcurrency = 0 }),
		Entry("backend concurrency", func(c *Config) { c.BackendConcurrency = 0 }),
		Entry("dpi", func(c *Config) { c.DPI = 10 }),
		Entry("negative timeout", func(c *Config) { c.BackendTimeout = -time.Second }),
		Entry("unknown strategy", func(c *Config) { c.RasterOrder = []Strategy{"telepathy"} }),
	)

	Describe("ParseStrategies", func() {
		It("parses a preference order", func() {
			Expect(ParseStrategies(" OCR , vision,ocr")).To(Equal([]Strategy{StrategyOCR, StrategyVision}))
		})

		It("rejects unknown and empty lists", func() {
			_, err := ParseStrategies("ocr,native")
			Expect(err).To(HaveOccurred())
			_, err = ParseStrategies(" , ")
			Expect(err).To(HaveOccurred())
		})
	})
})
