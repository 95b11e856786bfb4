package ops

// Target IR operation types produced by the default translators.
const (
	TypeNoOp      = "NoOp"
	TypeAdd       = "Add"
	TypeSubtract  = "Subtract"
	TypeMultiply  = "Multiply"
	TypeDivide    = "Divide"
	TypePower     = "Power"
	TypeMatMul    = "MatMul"
	TypeSqrt      = "Sqrt"
	TypeExp       = "Exp"
	TypeLog       = "Log"
	TypeNegative  = "Negative"
	TypeAbs       = "Abs"
	TypeRelu      = "Relu"
	TypeLeakyRelu = "LeakyRelu"
	TypeSigmoid   = "Sigmoid"
	TypeTanh      = "Tanh"
	TypeGelu      = "Gelu"
	TypeSwish     = "Swish"
	TypeSoftmax   = "Softmax"
	TypeTranspose = "Transpose"
	TypeReshape   = "Reshape"
	TypeUnsqueeze = "Unsqueeze"
	TypeConcat    = "Concat"
	TypeSplit     = "Split"
	TypeGather    = "Gather"
	TypeConvert   = "Convert"
	TypeShapeOf   = "ShapeOf"
	TypeIf        = "If"
	TypeLoop      = "Loop"
)
