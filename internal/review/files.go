package review

import (
	"bytes"
	"debug/elf"
	"io"
	"sort"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"

	"github.com/flathub-infra/buildhooks/internal/flatref"
)

// expectedMachines maps a ref architecture to the ELF machine codes it
// may legitimately ship. x86_64 refs may carry legacy 32-bit binaries;
// anything else flags every executable.
var expectedMachines = map[string][]elf.Machine{
	"x86_64":  {elf.EM_X86_64, elf.EM_386},
	"aarch64": {elf.EM_AARCH64},
}

// scanExecutables walks the ref's payload and flags executables and
// shared libraries built for the wrong architecture. All offenders for
// one ref land in a single warning diagnostic.
func (v *Validation) scanExecutables(refstring, root string) ([]Diagnostic, error) {
	dir, err := v.Repo.ReadDir(root)
	if err != nil {
		return nil, err
	}
	payload, ok := dir.Dirs["files"]
	if !ok {
		return nil, nil
	}

	expected := expectedMachines[flatref.Arch(refstring)]

	var wrong []WrongArchExecutable
	if err := v.scanDirectory(payload, "files", expected, &wrong); err != nil {
		return nil, err
	}
	if len(wrong) == 0 {
		return nil, nil
	}

	return []Diagnostic{newWarning(CategoryWrongArchExecutables, refstring, WrongArchExecutables{
		ExpectedArch: flatref.Arch(refstring),
		Executables:  wrong,
	})}, nil
}

func (v *Validation) scanDirectory(checksum, path string, expected []elf.Machine, wrong *[]WrongArchExecutable) error {
	dir, err := v.Repo.ReadDir(checksum)
	if err != nil {
		return err
	}

	for _, name := range sortedNames(dir.Files) {
		content, err := v.Repo.LoadFile(dir.Files[name])
		if err != nil {
			return err
		}
		scanFile(path+"/"+name, content, expected, wrong)
	}
	for _, name := range sortedNames(dir.Dirs) {
		if err := v.scanDirectory(dir.Dirs[name], path+"/"+name, expected, wrong); err != nil {
			return err
		}
	}
	return nil
}

func scanFile(path string, content []byte, expected []elf.Machine, wrong *[]WrongArchExecutable) {
	// Sniff the content type from the start of the file first; header
	// parsing is only attempted on executables and shared libraries.
	sniffed := mimetype.Detect(content)
	if !sniffed.Is("application/x-executable") && !sniffed.Is("application/x-sharedlib") {
		return
	}

	file, err := elf.NewFile(bytes.NewReader(content))
	if err != nil {
		// Not actually an ELF file, skip it.
		return
	}
	defer file.Close()

	for _, machine := range expected {
		if file.Machine == machine {
			return
		}
	}
	*wrong = append(*wrong, WrongArchExecutable{
		Path:             path,
		DetectedArch:     file.Machine.String(),
		DetectedArchCode: uint16(file.Machine),
	})
}

func sortedNames(entries map[string]string) []string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func gunzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
