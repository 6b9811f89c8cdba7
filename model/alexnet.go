// alexnet.go
// Dieses Modul enthaelt die MiniAlexNet-Topologie fuer den Geraete-Vergleich.

package model

import (
	"cmp"
	"fmt"
)

const (
	alexNetImageSize = 227
	alexNetChannels  = 3
	alexNetClasses   = 5
)

func init() {
	Register("mini_alexnet", MiniAlexNet)
}

// pooled returns the spatial size after a kernel k, stride s, unpadded
// window, or an error if the input is smaller than the window.
func pooled(layer string, size, k, s int) (int, error) {
	if size < k {
		return 0, fmt.Errorf("%s: input size %d smaller than kernel %d", layer, size, k)
	}
	return (size-k)/s + 1, nil
}

// MiniAlexNet is a five convolution, three fully connected AlexNet variant
// without dropout. Its input is "data" (3 channel images) and "label"
// (int32 classes); it outputs "pred", "xent" and the scalar "loss", followed
// by the backward pass from loss down to "pool5_grad".
func MiniAlexNet(c Config) (*Model, error) {
	size := cmp.Or(c.ImageSize, alexNetImageSize)

	// conv1 11/4, pool1 3/2, conv2..conv5 keep the size, pool2 3/2, pool5 3/2
	s := size
	var err error
	for _, layer := range []struct {
		name string
		k, s int
	}{{"conv1", 11, 4}, {"pool1", 3, 2}, {"pool2", 3, 2}, {"pool5", 3, 2}} {
		if s, err = pooled(layer.name, s, layer.k, layer.s); err != nil {
			return nil, fmt.Errorf("mini_alexnet: image size %d: %w", size, err)
		}
	}

	xavier := MustInitializer(Xavier(XavierOptions{}))
	zero := MustInitializer(Constant(ConstantOptions{}))
	tenth := MustInitializer(Constant(ConstantOptions{Value: 0.1}))

	h := NewHelper("alexnet", c.Order, c.Seed)
	conv1 := h.Conv("data", "conv1", alexNetChannels, 16, 11, xavier, zero, Stride(4), Pad(0))
	relu1 := h.Relu(conv1, "relu1")
	norm1 := h.LRN(relu1, "norm1", 5, 0.0001, 0.75)
	pool1 := h.MaxPool(norm1, "pool1", 3, 2)

	conv2 := h.GroupConv(pool1, "conv2", 16, 32, 5, 2, xavier, tenth, Stride(1), Pad(2))
	relu2 := h.Relu(conv2, "relu2")
	norm2 := h.LRN(relu2, "norm2", 5, 0.0001, 0.75)
	pool2 := h.MaxPool(norm2, "pool2", 3, 2)

	conv3 := h.Conv(pool2, "conv3", 32, 64, 3, xavier, zero, Pad(1))
	relu3 := h.Relu(conv3, "relu3")
	conv4 := h.GroupConv(relu3, "conv4", 64, 64, 3, 2, xavier, tenth, Pad(1))
	relu4 := h.Relu(conv4, "relu4")
	conv5 := h.GroupConv(relu4, "conv5", 64, 32, 3, 2, xavier, tenth, Pad(1))
	relu5 := h.Relu(conv5, "relu5")
	pool5 := h.MaxPool(relu5, "pool5", 3, 2)

	fc6 := h.FC(pool5, "fc6", 32*s*s, 1024, xavier, tenth)
	relu6 := h.Relu(fc6, "relu6")
	fc7 := h.FC(relu6, "fc7", 1024, 1024, xavier, tenth)
	relu7 := h.Relu(fc7, "relu7")
	fc8 := h.FC(relu7, "fc8", 1024, alexNetClasses, xavier, zero)

	pred := h.Softmax(fc8, "pred")
	xent := h.LabelCrossEntropy(pred, "label", "xent")
	loss := h.AveragedLoss(xent, "loss")
	h.AddGradientOperators(loss)

	if err := h.Err(); err != nil {
		return nil, fmt.Errorf("mini_alexnet: %w", err)
	}

	return &Model{
		Name:      "mini_alexnet",
		Order:     c.Order,
		Net:       h.Net(),
		InitNet:   h.InitNet(),
		Params:    h.Params(),
		Gradients: h.Gradients(),
		Ignore:    h.PoolIndexNames(),
		Data:      "data",
		Label:     "label",
		imageSize: size,
		channels:  alexNetChannels,
		classes:   alexNetClasses,
	}, nil
}
