package model

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// スナップショット形式: マジックナンバー(4B) + xxhash64チェックサム(8B) +
// zstd圧縮されたgobペイロード。ストリームを跨いだ再開時に破損した
// 状態を読み込まないよう、ロード時にチェックサムを検証する。
var snapshotMagic = [4]byte{'S', 'L', 'M', '1'}

// SaveSnapshot はモデル状態をio.Writerに保存する
//
// パラメータ:
//   - state: 保存する状態（gobエンコード可能な構造体）
//   - w: 保存先のWriter
//
// 戻り値:
//   - error: 保存に失敗した場合のエラー
func SaveSnapshot(state interface{}, w io.Writer) error {
	var payload bytes.Buffer
	zw, err := zstd.NewWriter(&payload)
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}

	if err := gob.NewEncoder(zw).Encode(state); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush compressor: %w", err)
	}

	if _, err := w.Write(snapshotMagic[:]); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	var sum [8]byte
	binary.LittleEndian.PutUint64(sum[:], xxhash.Sum64(payload.Bytes()))
	if _, err := w.Write(sum[:]); err != nil {
		return fmt.Errorf("failed to write checksum: %w", err)
	}

	if _, err := w.Write(payload.Bytes()); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}
	return nil
}

// LoadSnapshot はio.Readerからモデル状態を読み込む
//
// パラメータ:
//   - state: 読み込み先（ポインタ）
//   - r: 読み込み元のReader
//
// 戻り値:
//   - error: 読み込みまたは検証に失敗した場合のエラー
func LoadSnapshot(state interface{}, r io.Reader) error {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if !bytes.Equal(header[:4], snapshotMagic[:]) {
		return fmt.Errorf("not a streamlm snapshot (bad magic %q)", header[:4])
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	want := binary.LittleEndian.Uint64(header[4:12])
	if got := xxhash.Sum64(payload); got != want {
		return fmt.Errorf("snapshot checksum mismatch: want %016x, got %016x", want, got)
	}

	zr, err := zstd.NewReader(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer zr.Close()

	if err := gob.NewDecoder(zr).Decode(state); err != nil {
		return fmt.Errorf("failed to decode state: %w", err)
	}
	return nil
}

// SaveSnapshotFile はモデル状態をファイルに保存する
func SaveSnapshotFile(state interface{}, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return SaveSnapshot(state, file)
}

// LoadSnapshotFile はファイルからモデル状態を読み込む
func LoadSnapshotFile(state interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return LoadSnapshot(state, file)
}
