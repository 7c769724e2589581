package receipt

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage *LocalStorage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewScratchStorage(tmpDir, "pages-*")
		Expect(err).NotTo(HaveOccurred())
	})

	It("should create its directory under the base", func() {
		Expect(storage.Path()).To(BeADirectory())
		Expect(filepath.Dir(storage.Path())).To(Equal(tmpDir))
	})

	Describe("Save and Get", func() {
		It("should round trip a page", func() {
			name, err := storage.Save("page-0001.png", []byte("png bytes"))
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("page-0001.png"))

			data, err := storage.Get(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("png bytes")))
		})

		It("should keep files inside its directory", func() {
			name, err := storage.Save("../../escape.png", []byte("x"))
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("escape.png"))
			Expect(filepath.Join(storage.Path(), "escape.png")).To(BeAnExistingFile())
			Expect(filepath.Join(tmpDir, "escape.png")).NotTo(BeAnExistingFile())
		})

		When("the file does not exist", func() {
			It("should return an error", func() {
				_, err := storage.Get("missing.png")
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Delete", func() {
		It("should remove the file", func() {
			name, err := storage.Save("page.png", []byte("x"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete(name)).To(Succeed())
			Expect(filepath.Join(storage.Path(), name)).NotTo(BeAnExistingFile())
		})

		When("the file does not exist", func() {
			It("should return an error", func() {
				Expect(storage.Delete("missing.png")).NotTo(Succeed())
			})
		})
	})
})

var _ = Describe("NewScratchStorage", func() {
	It("should create a fresh directory each time and remove it on RemoveAll", func() {
		base := GinkgoT().TempDir()

		first, err := NewScratchStorage(base, "pages-*")
		Expect(err).NotTo(HaveOccurred())
		second, err := NewScratchStorage(base, "pages-*")
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Path()).NotTo(Equal(second.Path()))

		_, err = first.Save("page.png", []byte("x"))
		Expect(err).NotTo(HaveOccurred())

		Expect(first.RemoveAll()).To(Succeed())
		Expect(first.Path()).NotTo(BeAnExistingFile())
		Expect(second.Path()).To(BeADirectory())
	})

	It("should fail when the base directory is missing", func() {
		_, err := NewScratchStorage(filepath.Join(GinkgoT().TempDir(), "missing"), "pages-*")
		Expect(err).To(HaveOccurred())
		Expect(os.IsNotExist(err)).To(BeFalse())
	})
})
