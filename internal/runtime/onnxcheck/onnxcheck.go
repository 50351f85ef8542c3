// Package onnxcheck проверяет, что ONNX Runtime загружается и может открыть модель.
package onnxcheck

import (
	"context"
	"fmt"
	"os"
	"strings"

	"emperror.dev/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Tensor описание входа или выхода модели.
type Tensor struct {
	Name  string
	Shape string
	Type  string
}

func (t Tensor) String() string {
	return fmt.Sprintf("%s %s %s", t.Name, t.Type, t.Shape)
}

// Report результат проверки.
type Report struct {
	Runtime string
	Model   string
	Inputs  []Tensor
	Outputs []Tensor
}

// Summary многострочное описание входов и выходов.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "runtime: %s\nmodel: %s\n", r.Runtime, r.Model)
	for _, in := range r.Inputs {
		fmt.Fprintf(&b, "  input  %s\n", in)
	}
	for _, out := range r.Outputs {
		fmt.Fprintf(&b, "  output %s\n", out)
	}
	return b.String()
}

// Check загружает библиотеку, читает описание модели и создаёт сессию,
// после чего освобождает всё обратно. libPath может быть пустым.
func Check(ctx context.Context, libPath string, modelPath string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	if modelPath == "" {
		return Report{}, errors.New("model path is empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return Report{}, errors.Wrapf(err, "model %s", modelPath)
	}

	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return Report{}, errors.Wrap(err, "initialize onnxruntime")
	}
	defer func() {
		_ = ort.DestroyEnvironment()
	}()

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return Report{}, errors.Wrapf(err, "read model info %s", modelPath)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, names(inputs), names(outputs), nil)
	if err != nil {
		return Report{}, errors.Wrapf(err, "create session %s", modelPath)
	}
	if err := session.Destroy(); err != nil {
		return Report{}, errors.Wrap(err, "destroy session")
	}

	return Report{
		Runtime: ort.GetVersion(),
		Model:   modelPath,
		Inputs:  tensors(inputs),
		Outputs: tensors(outputs),
	}, nil
}

func names(infos []ort.InputOutputInfo) []string {
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Name)
	}
	return out
}

func tensors(infos []ort.InputOutputInfo) []Tensor {
	out := make([]Tensor, 0, len(infos))
	for _, info := range infos {
		out = append(out, Tensor{
			Name:  info.Name,
			Shape: info.Dimensions.String(),
			Type:  fmt.Sprint(info.DataType),
		})
	}
	return out
}
